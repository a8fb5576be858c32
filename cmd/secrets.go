package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// newSecrets turns a list of NAME or NAME=VALUE pairs into a secret map.
// A bare NAME is read from the environment, or prompted for on a terminal.
func newSecrets(secretList []string) map[string]string {
	secrets := make(map[string]string)
	for _, secretPair := range secretList {
		secretPairParts := strings.SplitN(secretPair, "=", 2)
		secretPairParts[0] = strings.ToUpper(secretPairParts[0])
		if len(secretPairParts) == 2 {
			secrets[secretPairParts[0]] = secretPairParts[1]
		} else if secret, ok := os.LookupEnv(secretPairParts[0]); ok && secret != "" {
			secrets[secretPairParts[0]] = secret
		} else {
			fmt.Printf("Provide value for '%s': ", secretPairParts[0])
			val, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				log.Errorf("failed to read input: %v", err)
				os.Exit(1)
			}
			secrets[secretPairParts[0]] = string(val)
		}
	}
	return secrets
}
