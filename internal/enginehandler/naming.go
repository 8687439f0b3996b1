package enginehandler

import (
	"strings"
	"unicode"

	"github.com/wsfleet/coordinator/internal/models"
)

// GenerateVMName builds the deterministic guest VM name for a reservation,
// the same way the reference _generate_name_for_vm does: capitalized
// username, capitalized template internal name, and the request timestamp
// with every non-digit stripped, concatenated with no separators.
func GenerateVMName(r models.Reservation, tpl models.Template) string {
	username := capitalize(r.Username)
	internalName := capitalize(tpl.InternalName)
	stamp := digitsOnly(r.RequestDate.Format("20060102150405"))
	return username + internalName + stamp
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
