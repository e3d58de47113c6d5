package util

import (
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to flag names to build their environment variable
const EnvPrefix = "WG_"

// SetFlagsFromEnvVars reads and updates unchanged persistent flags from environment variables with prefix WG_.
// Flags given on the command line always win.
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	// systemd LoadCredential= support
	credsDir, present := os.LookupEnv("CREDENTIALS_DIRECTORY")

	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		name := flagNameToUpper(f.Name)

		if present {
			data, e := os.ReadFile(path.Join(credsDir, name))
			if e == nil {
				err := flags.Set(f.Name, strings.TrimSuffix(string(data), "\n"))
				if err != nil {
					log.Infof("unable to configure flag %s using credential %s, err: %v", f.Name, name, err)
				} else {
					return
				}
			}
		}

		// E.g. retry-attempts -> WG_RETRY_ATTEMPTS
		envName := EnvPrefix + name

		if value, varPresent := os.LookupEnv(envName); varPresent {
			err := flags.Set(f.Name, value)
			if err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envName, err)
			}
		}
	})
}

// flagNameToUpper converts a flag name to its corresponding base env name
// replacing dashes by underscores and making the result uppercase
// E.g. retry-attempts -> RETRY_ATTEMPTS
func flagNameToUpper(cmdFlag string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
