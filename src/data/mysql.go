package data

import (
	"fmt"
	"os"
	"strings"
)

// GetDSN returns the database DSN configured via environment. GROUPGUARD_DSN wins over MYSQL_DSN.
func GetDSN() (string, error) {
	for _, key := range []string{"GROUPGUARD_DSN", "MYSQL_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn, nil
		}
	}
	return "", fmt.Errorf("GROUPGUARD_DSN is not set")
}
