package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/datawire/dlib/dlog"

	"github.com/vpnsentinel/vpnsentinel/pkg/keepalive"
)

// reporter delivers assembled keepalives to the server, or to a capture file
// when testing.
type reporter struct {
	url         string
	apiKey      string
	capturePath string
	hClient     *http.Client
}

func newReporter(env *Env) (*reporter, error) {
	var tlsCfg *tls.Config
	switch {
	case env.AllowInsecure:
		tlsCfg = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opted in
	case env.CABundlePath != "":
		pem, err := os.ReadFile(env.CABundlePath)
		if err != nil {
			return nil, errors.Wrap(err, "read CA bundle")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates in %s", env.CABundlePath)
		}
		tlsCfg = &tls.Config{RootCAs: pool}
	}
	return &reporter{
		url:         keepalive.Endpoint(env.ServerURL, env.APIPath),
		apiKey:      env.APIKey,
		capturePath: env.TestCapturePath,
		hClient: &http.Client{
			Timeout: env.Timeout(),
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: tlsCfg,
			},
		},
	}, nil
}

// submit delivers one keepalive. With a capture path configured there is no
// network I/O at all; the payload is appended to the file as one JSON line.
func (r *reporter) submit(ctx context.Context, p keepalive.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal keepalive")
	}
	if r.capturePath != "" {
		return r.capture(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build keepalive request")
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}
	resp, err := r.hClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "post keepalive")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("server answered %d", resp.StatusCode)
	}
	dlog.Debugf(ctx, "keepalive accepted by %s", r.url)
	return nil
}

func (r *reporter) capture(line []byte) error {
	if dir := filepath.Dir(r.capturePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create capture dir")
		}
	}
	f, err := os.OpenFile(r.capturePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open capture file")
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}
