package importer

import (
	"fmt"
	"strings"
)

// FormatReport renders a human-readable run summary for the CLI.
func FormatReport(r Report) string {
	var sb strings.Builder
	if r.DryRun {
		sb.WriteString("Import analysis (dry run)\n")
	} else {
		sb.WriteString("Import summary\n")
	}

	fmt.Fprintf(&sb, "  company:        %s\n", r.CompanyID)
	fmt.Fprintf(&sb, "  messages:       %d (%d skipped lines, %d merged)\n", r.Messages, r.SkippedLines, r.MergedLines)
	if r.DateRange != nil {
		fmt.Fprintf(&sb, "  date range:     %s .. %s\n",
			r.DateRange.Start.Format("2006-01-02 15:04"), r.DateRange.End.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&sb, "  chunks:         %d\n", r.Chunks)
	fmt.Fprintf(&sb, "  q&a pairs:      %d (%d above threshold)\n", r.Pairs, r.Qualifying)

	if len(r.Participants) > 0 {
		sb.WriteString("  participants:\n")
		for _, p := range r.Participants {
			fmt.Fprintf(&sb, "    - %s [%s]: %d msgs, %d questions, %d instructions", p.Name, p.Role, p.MessageCount, p.QuestionCount, p.InstructionCount)
			if len(p.Indicators) > 0 {
				fmt.Fprintf(&sb, " (%s)", strings.Join(p.Indicators, "; "))
			}
			sb.WriteString("\n")
		}
	}

	if !r.DryRun {
		im := r.Import
		fmt.Fprintf(&sb, "  created:        %d categories, %d faq, %d documents, %d attachments\n",
			im.CategoriesCreated, im.ItemsCreated, im.DocumentsCreated, im.AttachmentsCreated)
		fmt.Fprintf(&sb, "  skipped:        %d duplicates\n", im.Skipped)
		if len(im.Errors) > 0 {
			fmt.Fprintf(&sb, "  errors:         %d\n", len(im.Errors))
			for _, e := range im.Errors {
				fmt.Fprintf(&sb, "    - %s\n", e)
			}
		}
	}
	return sb.String()
}
