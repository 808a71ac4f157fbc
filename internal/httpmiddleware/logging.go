package httpmiddleware

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const redacted = "REDACTED"

// LogFormatter formats gin access log lines like gin's default formatter,
// with the values of the named query parameters masked.
func LogFormatter(secrets ...string) gin.LogFormatter {
	return func(p gin.LogFormatterParams) string {
		return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
			p.TimeStamp.Format("2006/01/02 - 15:04:05"),
			p.StatusCode,
			p.Latency,
			p.ClientIP,
			p.Method,
			RedactQuery(p.Path, secrets...),
			p.ErrorMessage,
		)
	}
}

// RedactQuery masks the values of the named parameters in the query part
// of target. An unparsable query is masked entirely.
func RedactQuery(target string, secrets ...string) string {
	base, raw, ok := strings.Cut(target, "?")
	if !ok {
		return target
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return base + "?" + redacted
	}
	changed := false
	for _, k := range secrets {
		if q.Has(k) {
			q.Set(k, redacted)
			changed = true
		}
	}
	if !changed {
		return target
	}
	return base + "?" + q.Encode()
}
