package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bdragon300/fbupload"
	"github.com/bdragon300/fbupload/internal/config"
	"github.com/bitrise-io/go-utils/v2/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/vitorsalgado/mocha/v3"
	"github.com/vitorsalgado/mocha/v3/expect"
	"github.com/vitorsalgado/mocha/v3/params"
	"github.com/vitorsalgado/mocha/v3/reply"
)

// graphHandler answers the three upload phases for a file which fits in one chunk
func graphHandler(phases *[]string) func(r *http.Request, m reply.M, p params.P) (*reply.Response, error) {
	return func(r *http.Request, m reply.M, p params.P) (*reply.Response, error) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return nil, err
		}
		phase := r.MultipartForm.Value["upload_phase"][0]
		*phases = append(*phases, phase)

		var body string
		switch phase {
		case "start":
			size := r.MultipartForm.Value["file_size"][0]
			body = `{"upload_session_id":"s1","video_id":"v1","start_offset":"0","end_offset":"` + size + `"}`
		case "transfer":
			size := r.MultipartForm.File["video_file_chunk"][0].Size
			body = `{"start_offset":` + strconv.FormatInt(size, 10) + `,"end_offset":` + strconv.FormatInt(size, 10) + `}`
		case "finish":
			body = `{"success":true}`
		}
		return reply.OK().BodyString(body).Build(r, m, p)
	}
}

var _ = Describe("upload command", func() {
	var srvMock *mocha.Mocha
	var videoPath string

	BeforeEach(func() {
		srvMock = mocha.New(GinkgoT())
		srvMock.Start()
		videoPath = filepath.Join(GinkgoT().TempDir(), "clip.mp4")
		Ω(os.WriteFile(videoPath, bytes.Repeat([]byte("x"), 100), 0o600)).Should(Succeed())
	})
	AfterEach(func() {
		srvMock.AssertCalled(GinkgoT())
		Ω(srvMock.Close()).Should(Succeed())
	})

	It("should upload file and print the result", func() {
		var phases []string
		srvMock.AddMocks(mocha.Request().
			URL(expect.URLPath("/v18.0/me/videos")).Method(http.MethodPost).
			ReplyFunction(graphHandler(&phases)))

		out := &bytes.Buffer{}
		cmd := newRootCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{
			"upload", "me", videoPath,
			"--access-token", "token",
			"--graph-url", srvMock.URL(),
			"--api-version", "v18.0",
			"--http-retries", "0",
			"--title", "Clip",
		})

		Ω(cmd.ExecuteContext(context.Background())).Should(Succeed())
		Ω(phases).Should(Equal([]string{"start", "transfer", "finish"}))
		Ω(out.String()).Should(Equal(`{"video_id":"v1","success":true}` + "\n"))
	})
	It("should fail without access token", func() {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"upload", "me", videoPath, "--graph-url", srvMock.URL()})

		Ω(cmd.ExecuteContext(context.Background())).Should(MatchError(ContainSubstring("access token is not set")))
	})
	It("should require target and file", func() {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"upload", "me"})

		Ω(cmd.ExecuteContext(context.Background())).ShouldNot(Succeed())
	})
})

var _ = Describe("newUploader", func() {
	It("should wire config into uploader", func() {
		cfg := &config.Config{
			AccessToken: "token",
			AppSecret:   "secret",
			APIVersion:  "v19.0",
			GraphURL:    "https://graph.example.com",
			ChunkSize:   4 << 20,
			MaxTries:    3,
			HTTPTimeout: time.Minute,
			HTTPRetries: 1,
		}

		u, err := newUploader(cfg, log.NewLogger())
		Ω(err).Should(Succeed())
		Ω(u.Session.AccessToken).Should(Equal("token"))
		Ω(u.Session.APIVersion).Should(Equal("v19.0"))
		Ω(u.Session.ChunkSize).Should(Equal(int64(4 << 20)))
		Ω(u.HTTPClient).ShouldNot(BeNil())

		graph, ok := u.Session.Transport.(*fbupload.GraphClient)
		Ω(ok).Should(BeTrue())
		Ω(graph.AppSecret).Should(Equal("secret"))
		Ω(graph.BaseURL.String()).Should(Equal("https://graph.example.com"))
	})
	It("should reject bad graph url", func() {
		_, err := newUploader(&config.Config{GraphURL: "://graph"}, log.NewLogger())
		Ω(err).Should(MatchError(ContainSubstring("invalid graph url")))
	})
})

var _ = Describe("videoMetadata", func() {
	It("should merge title and description into extra fields", func() {
		Ω(videoMetadata("Clip", "About cats", map[string]string{"published": "false"})).Should(Equal(map[string]string{
			"title":       "Clip",
			"description": "About cats",
			"published":   "false",
		}))
	})
	It("should prefer explicit title", func() {
		Ω(videoMetadata("Clip", "", map[string]string{"title": "Other"})).Should(Equal(map[string]string{"title": "Clip"}))
	})
	It("should return empty metadata", func() {
		Ω(videoMetadata("", "", nil)).Should(BeEmpty())
	})
})
