package ingest

import "regexp"

// TopicRule maps a keyword pattern to a category label.
type TopicRule struct {
	Pattern *regexp.Regexp
	Label   string
}

// TopicRules is evaluated in order; the first match wins.
var TopicRules = []TopicRule{
	{regexp.MustCompile(`(?i)(שעות|פתוח|סגור|פתיחה|סגירה|opening hours|open|closing|closed)`), "שעות פעילות"},
	{regexp.MustCompile(`(?i)(משמרת|משמרות|סידור עבודה|החלפה|shift|schedule)`), "משמרות"},
	{regexp.MustCompile(`(?i)(משכורת|שכר|תלוש|בונוס|טיפים|salary|payslip|wage|bonus|tips)`), "שכר ותשלומים"},
	{regexp.MustCompile(`(?i)(חופש|חופשה|מחלה|אישור מחלה|vacation|sick|day off)`), "חופשות ומחלה"},
	{regexp.MustCompile(`(?i)(נוהל|נהלים|אסור|חובה|procedure|policy|rules?\b)`), "נהלים"},
	{regexp.MustCompile(`(?i)(בטיחות|זהירות|כיבוי|מטף|חירום|safety|emergency|fire)`), "בטיחות"},
	{regexp.MustCompile(`(?i)(לקוח|לקוחות|תלונה|החזר|customer|complaint|refund)`), "לקוחות"},
	{regexp.MustCompile(`(?i)(מלאי|הזמנה|הזמנות|ספק|סחורה|inventory|stock|supplier|delivery)`), "מלאי והזמנות"},
	{regexp.MustCompile(`(?i)(ציוד|תקלה|תיקון|מכונה|מקרר|equipment|repair|broken|maintenance)`), "ציוד ותחזוקה"},
	{regexp.MustCompile(`(?i)(ניקיון|לנקות|ניקוי|cleaning|clean)`), "ניקיון"},
	{regexp.MustCompile(`(?i)(קופה|מזומן|אשראי|קבלה|cash|register|receipt)`), "קופה"},
}

// DetectTopic returns the label of the first matching rule, or "".
func DetectTopic(text string) string {
	for _, r := range TopicRules {
		if r.Pattern.MatchString(text) {
			return r.Label
		}
	}
	return ""
}

// TopicLabels lists every label in rule order.
func TopicLabels() []string {
	labels := make([]string, 0, len(TopicRules))
	for _, r := range TopicRules {
		labels = append(labels, r.Label)
	}
	return labels
}
