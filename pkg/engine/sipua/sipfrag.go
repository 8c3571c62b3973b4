package sipua

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSipfrag разбирает тело NOTIFY для REFER: "SIP/2.0 180 Ringing"
func parseSipfrag(body []byte) (int, string, error) {
	line, _, _ := strings.Cut(string(body), "\n")
	line = strings.TrimSpace(line)

	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "SIP/") {
		return 0, "", fmt.Errorf("некорректный sipfrag %q", line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil || code < 100 || code > 699 {
		return 0, "", fmt.Errorf("некорректный код в sipfrag %q", line)
	}
	reason := ""
	if len(fields) == 3 {
		reason = fields[2]
	}
	return code, reason, nil
}
