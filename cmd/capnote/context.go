package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"capnote/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	client *http.Client
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// apiBaseURL resolves the daemon API base from the --api flag or the
// configured bind address.
func (c *commandContext) apiBaseURL() (string, error) {
	if c.apiFlag != nil {
		if base := strings.TrimSpace(*c.apiFlag); base != "" {
			return strings.TrimRight(base, "/"), nil
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return "", errors.New("daemon API is disabled (paths.api_bind is empty)")
	}
	return "http://" + bind, nil
}

// getJSON issues a GET request against the daemon API and decodes the
// response into out.
func (c *commandContext) getJSON(path string, out any) error {
	return c.doJSON(http.MethodGet, path, nil, out)
}

// doJSON issues a request with an optional JSON body against the daemon API.
func (c *commandContext) doJSON(method, path string, payload any, out any) error {
	base, err := c.apiBaseURL()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return wrapDialError(err, base)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return fmt.Errorf("daemon API returned %s", resp.Status)
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `capnoted`", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
