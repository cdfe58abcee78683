package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/supportchat/pkg/config"
)

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		for _, key := range []string{"LISTEN", "PROVIDER", "MODEL", "UPSTREAM_URL", "SYSTEM_PROMPT", "APPEARANCE", "OTLP_ENDPOINT", "TEMPERATURE", "MAX_TOKENS", "DEBUG"} {
			GinkgoT().Setenv(config.EnvPrefix+key, "")
			os.Unsetenv(config.EnvPrefix + key)
		}
	})

	writeFile := func(body string) string {
		path := filepath.Join(dir, "supportchat.toml")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	It("returns defaults without a file", func() {
		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(*cfg).To(Equal(config.Default()))
	})

	It("reads the TOML file over defaults", func() {
		path := writeFile(`
listen = ":9000"
provider = "ollama"
model = "llama3.2"
upstream_url = "http://localhost:11434"
debug = true
`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ListenAddr).To(Equal(":9000"))
		Expect(cfg.Provider).To(Equal(config.ProviderOllama))
		Expect(cfg.Model).To(Equal("llama3.2"))
		Expect(cfg.UpstreamURL).To(Equal("http://localhost:11434"))
		Expect(cfg.Debug).To(BeTrue())
		Expect(cfg.SystemPrompt).To(Equal(config.DefaultSystemPrompt))
	})

	It("lets the environment override the file", func() {
		path := writeFile(`listen = ":9000"`)
		GinkgoT().Setenv("SUPPORTCHAT_LISTEN", ":7000")
		GinkgoT().Setenv("SUPPORTCHAT_SYSTEM_PROMPT", "Answer in French.")

		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.ListenAddr).To(Equal(":7000"))
		Expect(cfg.SystemPrompt).To(Equal("Answer in French."))
	})

	It("reads sampling settings from the file and the environment", func() {
		path := writeFile(`
temperature = 0.25
max_tokens = 256
`)
		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Temperature).To(Equal(float32(0.25)))
		Expect(cfg.MaxTokens).To(Equal(256))

		GinkgoT().Setenv("SUPPORTCHAT_MAX_TOKENS", "64")
		cfg, err = config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.MaxTokens).To(Equal(64))
	})

	It("rejects sampling settings out of range", func() {
		_, err := config.Load(writeFile(`temperature = 3.0`))
		Expect(err).To(MatchError(ContainSubstring("temperature")))

		_, err = config.Load(writeFile(`max_tokens = -1`))
		Expect(err).To(MatchError(ContainSubstring("max_tokens")))
	})

	It("rejects an unknown provider", func() {
		path := writeFile(`provider = "carrier-pigeon"`)

		_, err := config.Load(path)
		Expect(err).To(MatchError(config.ErrUnknownProvider))
	})

	It("fails on a malformed file", func() {
		path := writeFile(`listen = `)

		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})
})
