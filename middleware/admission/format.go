// utilitário pequeno para formatação consistente de valores numéricos em headers.

package admission

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatSeconds arredonda para cima: "Retry-After: 0" faria o cliente tentar de novo na hora.
func formatSeconds(d time.Duration) string {
	s := int((d + time.Second - 1) / time.Second)
	if s < 0 {
		s = 0
	}
	return strconv.Itoa(s)
}
