package main

import (
	"github.com/bdragon300/fbupload/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:   "fbupload",
		Short: "Resumable chunked video upload to the Graph API",
		Long: `fbupload transfers a local or remote video file to a Graph API node in chunks,
resuming from the offsets reported by server when a chunk transfer fails.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	f := root.PersistentFlags()
	f.String(config.KeyConfigFile, "", "Config file (yaml, json, toml)")
	f.String(config.KeyAccessToken, "", "Access token (or set FBUPLOAD_ACCESS_TOKEN)")
	f.String(config.KeyAppSecret, "", "App secret to sign requests with appsecret_proof")
	f.String(config.KeyAPIVersion, "", "Graph API version")
	f.String(config.KeyGraphURL, "", "Graph API base url")
	f.String(config.KeyChunkSize, "", "Fixed chunk size, e.g. 4MB. Server decides if empty")
	f.Int(config.KeyMaxTries, 0, "How many times a failed chunk is retried")
	f.Duration(config.KeyHTTPTimeout, 0, "Timeout of a single http request")
	f.Int(config.KeyHTTPRetries, 0, "Retries of a single http request on network errors and 5xx")
	f.Bool(config.KeyDebug, false, "Enable debug log")
	bindFlags(v, root)

	root.AddCommand(newUploadCmd(v))
	return root
}

// bindFlags makes the explicitly set flags take precedence over environment, config file and defaults
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	cmd.PersistentFlags().VisitAll(func(fl *pflag.Flag) {
		_ = v.BindPFlag(fl.Name, fl)
	})
}
