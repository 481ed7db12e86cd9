package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tabellenwerk/standings/internal/core/config"
)

var adminAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "addr", "", "address of a running pipeline (default derived from config)")
}

// adminBase resolves the admin endpoint, flag first, config port second.
func adminBase() string {
	if adminAddr != "" {
		return adminAddr
	}
	port := 8080
	if cfg, err := config.Load(cfgPath); err == nil {
		port = cfg.Server.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

var adminHTTP = &http.Client{Timeout: 30 * time.Second}

func adminGet(path string, out any) error {
	resp, err := adminHTTP.Get(adminBase() + path)
	if err != nil {
		return err
	}
	return decodeAdmin(resp, out)
}

func adminPost(path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := adminHTTP.Post(adminBase()+path, "application/json", &buf)
	if err != nil {
		return err
	}
	return decodeAdmin(resp, out)
}

func decodeAdmin(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("unexpected response: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func exitOnErr(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		os.Exit(1)
	}
}
