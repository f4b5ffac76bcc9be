package pipeline

// User-facing messages. The front-end is Persian-language.
const (
	SuccessMessage = "تصویر با موفقیت ساخته شد."
	FailureMessage = "تمام تلاش‌ها برای تولید تصویر به دلیل محدودیت‌های سرور یا خطاهای پایدار شکست خوردند."
)

// Result is the outcome of one Run.
type Result struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`

	RunID    string `json:"-"`
	Attempts int    `json:"-"`
}

func successResult(imageURL string) Result {
	return Result{Success: true, ImageURL: imageURL, Message: SuccessMessage}
}

func failureResult() Result {
	return Result{Success: false, Error: FailureMessage}
}
