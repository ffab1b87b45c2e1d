package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/bdragon300/fbupload"
	"github.com/bdragon300/fbupload/internal/config"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUploadCmd(v *viper.Viper) *cobra.Command {
	var title, description string
	var metadata map[string]string

	cmd := &cobra.Command{
		Use:   "upload <target> <file-or-url>",
		Short: "Upload a video to the videos edge of target node",
		Example: `  fbupload upload me ./clip.mp4 --title "My clip" --chunk-size 4MB
  FBUPLOAD_ACCESS_TOKEN=... fbupload upload 1234567890 https://example.com/clip.mp4`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			logger := log.NewLogger()
			logger.EnableDebugLog(cfg.Debug)

			uploader, err := newUploader(cfg, logger)
			if err != nil {
				return err
			}

			meta := videoMetadata(title, description, metadata)
			res, err := uploader.UploadVideo(cmd.Context(), args[0], args[1], meta, cfg.MaxTries)
			if res != nil {
				out, e := json.Marshal(res)
				if e != nil {
					return e
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Video title")
	cmd.Flags().StringVar(&description, "description", "", "Video description")
	cmd.Flags().StringToStringVar(&metadata, "metadata", nil, "Extra fields sent on finish, e.g. --metadata published=false")
	return cmd
}

func newUploader(cfg *config.Config, logger log.Logger) (*fbupload.Uploader, error) {
	baseURL, err := url.Parse(cfg.GraphURL)
	if err != nil {
		return nil, fmt.Errorf("invalid graph url %q: %w", cfg.GraphURL, err)
	}

	apiClient := retryhttp.NewClient(logger)
	apiClient.RetryMax = cfg.HTTPRetries
	apiClient.HTTPClient.Timeout = cfg.HTTPTimeout

	graph := fbupload.NewGraphClient(apiClient, baseURL)
	graph.AppSecret = cfg.AppSecret

	session := fbupload.NewSession(graph, cfg.AccessToken, cfg.APIVersion)
	session.ChunkSize = cfg.ChunkSize

	uploader := fbupload.NewUploader(session, logger)
	// Remote sources are streamed during the whole upload, so no overall timeout here
	sourceClient := retryhttp.NewClient(logger)
	sourceClient.RetryMax = cfg.HTTPRetries
	uploader.HTTPClient = sourceClient.StandardClient()
	return uploader, nil
}

func videoMetadata(title, description string, extra map[string]string) map[string]string {
	meta := make(map[string]string, len(extra)+2)
	for k, val := range extra {
		meta[k] = val
	}
	if title != "" {
		meta["title"] = title
	}
	if description != "" {
		meta["description"] = description
	}
	return meta
}
