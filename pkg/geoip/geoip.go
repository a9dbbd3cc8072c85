// Package geoip resolves the public IP and geolocation of this node through a
// chain of free lookup services.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/datawire/dlib/dlog"
)

// ServiceAuto makes Resolve try every provider in priority order.
const ServiceAuto = "auto"

// Record is the normalized answer of a geolocation provider. A zero IP means
// resolution failed everywhere.
type Record struct {
	IP       string `json:"ip"`
	Country  string `json:"country"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Org      string `json:"org"`
	Timezone string `json:"timezone"`
	Source   string `json:"source"`
}

// IsZero reports whether the record carries no resolved IP.
func (r Record) IsZero() bool {
	return r.IP == ""
}

type provider struct {
	name  string
	url   string
	parse func([]byte) (Record, error)
}

// Resolver queries geolocation providers. Providers are tried in a fixed
// priority order; each gets one attempt per Resolve call.
type Resolver struct {
	hClient   *http.Client
	providers []provider
}

// NewResolver returns a Resolver with the given per-attempt timeout.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{
		hClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: nil,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 1 * time.Second,
				}).DialContext,
				DisableKeepAlives: true,
			},
		},
		providers: []provider{
			{"ipinfo.io", "https://ipinfo.io/json", parseIPInfo},
			{"ip-api.com", "http://ip-api.com/json", parseIPAPI},
			{"ipwhois.app", "https://ipwhois.app/json/", parseIPWhois},
		},
	}
}

// Resolve returns the first successful provider answer. service is either
// ServiceAuto or the name of a single provider; an unknown name yields an
// empty record without network I/O.
func (r *Resolver) Resolve(ctx context.Context, service string) Record {
	for _, p := range r.providers {
		if service != ServiceAuto && service != p.name {
			continue
		}
		rec, err := r.query(ctx, p)
		if err != nil {
			dlog.Debugf(ctx, "geolocation provider %s: %v", p.name, err)
			continue
		}
		dlog.Debugf(ctx, "geolocation resolved by %s: ip=%s country=%s", p.name, rec.IP, rec.Country)
		return rec
	}
	return Record{}
}

func (r *Resolver) query(ctx context.Context, p provider) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Record{}, err
	}
	resp, err := r.hClient.Do(req)
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Record{}, err
	}
	rec, err := p.parse(body)
	if err != nil {
		return Record{}, err
	}
	if rec.IP == "" {
		return Record{}, errors.New("response carries no public ip")
	}
	rec.Source = p.name
	return rec, nil
}

func parseIPInfo(body []byte) (Record, error) {
	var raw struct {
		IP       string `json:"ip"`
		Country  string `json:"country"`
		City     string `json:"city"`
		Region   string `json:"region"`
		Org      string `json:"org"`
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Record{}, err
	}
	return Record{
		IP:       raw.IP,
		Country:  raw.Country,
		City:     raw.City,
		Region:   raw.Region,
		Org:      raw.Org,
		Timezone: raw.Timezone,
	}, nil
}

func parseIPAPI(body []byte) (Record, error) {
	var raw struct {
		Query      string `json:"query"`
		IP         string `json:"ip"`
		Country    string `json:"country"`
		City       string `json:"city"`
		RegionName string `json:"regionName"`
		Region     string `json:"region"`
		ISP        string `json:"isp"`
		Org        string `json:"org"`
		Timezone   string `json:"timezone"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Record{}, err
	}
	return Record{
		IP:       firstOf(raw.Query, raw.IP),
		Country:  raw.Country,
		City:     raw.City,
		Region:   firstOf(raw.RegionName, raw.Region),
		Org:      firstOf(raw.ISP, raw.Org),
		Timezone: raw.Timezone,
	}, nil
}

func parseIPWhois(body []byte) (Record, error) {
	var raw struct {
		IP       string          `json:"ip"`
		Country  string          `json:"country"`
		City     string          `json:"city"`
		Region   string          `json:"region"`
		Org      string          `json:"org"`
		Asn      json.RawMessage `json:"asn"`
		Timezone string          `json:"timezone"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Record{}, err
	}
	org := raw.Org
	if org == "" && len(raw.Asn) > 0 {
		// Some deployments nest the network name under asn.
		var asn struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw.Asn, &asn); err == nil {
			org = asn.Name
		}
	}
	return Record{
		IP:       raw.IP,
		Country:  raw.Country,
		City:     raw.City,
		Region:   raw.Region,
		Org:      org,
		Timezone: raw.Timezone,
	}, nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
