package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// fileSchema is the closed shape of the overlay file. Credentials are not
// accepted here; they come from the environment only.
const fileSchema = `
#Config: {
	port?:     int & >0 & <65536
	logLevel?: "debug" | "info" | "warn" | "error"
	logFile?:  string
	dataDir?:  string & !=""
	headless?: bool
	llm?: {
		model?:   string & !=""
		baseURL?: string & =~"^https?://"
	}
	services?: {
		url?: string & =~"^https?://"
	}
	session?: {
		thoughtMode?:      "off" | "soft" | "strict"
		thoughtTimeoutMs?: int & >=0
		stepPacingMs?:     int & >=0
		language?:         string & !=""
	}
	ffmpeg?: string & !=""
	proxy?:  string
}
`

// File is a decoded overlay file. Nil fields leave the defaults untouched.
type File struct {
	Port     *int    `json:"port"`
	LogLevel *string `json:"logLevel"`
	LogFile  *string `json:"logFile"`
	DataDir  *string `json:"dataDir"`
	Headless *bool   `json:"headless"`
	LLM      *struct {
		Model   *string `json:"model"`
		BaseURL *string `json:"baseURL"`
	} `json:"llm"`
	Services *struct {
		URL *string `json:"url"`
	} `json:"services"`
	Session *struct {
		ThoughtMode      *string `json:"thoughtMode"`
		ThoughtTimeoutMs *int    `json:"thoughtTimeoutMs"`
		StepPacingMs     *int    `json:"stepPacingMs"`
		Language         *string `json:"language"`
	} `json:"session"`
	FFmpeg *string `json:"ffmpeg"`
	Proxy  *string `json:"proxy"`
}

// LoadFile reads a CUE (or JSON) overlay file and validates it against the
// closed config schema.
func LoadFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseFile(path, content)
}

func parseFile(name string, content []byte) (*File, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(fileSchema).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(name))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", name, err)
	}

	var f File
	if err := unified.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return &f, nil
}

func (f *File) apply(c *EnvConfig) {
	if f.Port != nil {
		c.port = *f.Port
	}
	if f.LogLevel != nil {
		c.logLevel = *f.LogLevel
	}
	if f.LogFile != nil {
		c.logFile = *f.LogFile
	}
	if f.DataDir != nil {
		c.dataDir = *f.DataDir
	}
	if f.Headless != nil {
		c.headless = *f.Headless
	}
	if f.LLM != nil {
		if f.LLM.Model != nil {
			c.llmModel = *f.LLM.Model
		}
		if f.LLM.BaseURL != nil {
			c.llmBaseURL = strings.TrimRight(*f.LLM.BaseURL, "/")
		}
	}
	if f.Services != nil && f.Services.URL != nil {
		c.servicesURL = strings.TrimRight(*f.Services.URL, "/")
	}
	if s := f.Session; s != nil {
		if s.ThoughtMode != nil {
			c.thoughtMode = *s.ThoughtMode
		}
		if s.ThoughtTimeoutMs != nil {
			c.thoughtTimeout = time.Duration(*s.ThoughtTimeoutMs) * time.Millisecond
		}
		if s.StepPacingMs != nil {
			c.stepPacing = time.Duration(*s.StepPacingMs) * time.Millisecond
		}
		if s.Language != nil {
			c.language = *s.Language
		}
	}
	if f.FFmpeg != nil {
		c.ffmpegPath = *f.FFmpeg
	}
	if f.Proxy != nil {
		c.proxyURL = *f.Proxy
	}
}
