package provider

import (
	"encoding/json"
	"time"
)

// Tenant carries one credential set for talking to the provider.  The
// secret arrives already decrypted; the vault is the caller's concern.
type Tenant struct {
	Label        string
	ClientID     string
	ClientSecret string
	Scope        string
	Audience     string
}

// RemoteFleet is the canonical shape of one fleet entry after field-name
// normalization.
type RemoteFleet struct {
	Sid  string
	Name string
}

// RemoteSim is the canonical shape of one SIM entry.
type RemoteSim struct {
	Sid      string
	ICCID    string
	Name     string
	Status   string
	FleetSid string
	LastSeen *time.Time
}

// CommandLogEntry is one row from the provider's command log.
type CommandLogEntry struct {
	Sid       string
	SimSid    string
	Payload   string
	Status    string
	Direction string
	CreatedAt *time.Time
}

// CommandResponse is returned by SendCommand.
type CommandResponse struct {
	Sid    string
	Status string
}

// listEnvelope tolerates the provider's heterogeneous page shapes: the
// item array shows up under a resource-specific key or a generic one, and
// the continuation link either at the top level or nested under meta.
type listEnvelope struct {
	Fleets      []json.RawMessage `json:"fleets"`
	Sims        []json.RawMessage `json:"sims"`
	Commands    []json.RawMessage `json:"sms_commands"`
	Items       []json.RawMessage `json:"items"`
	Data        []json.RawMessage `json:"data"`
	NextPageURL string            `json:"next_page_url"`
	NextPage    string            `json:"nextPageUrl"`
	Meta        struct {
		NextPageURL string `json:"next_page_url"`
	} `json:"meta"`
}

func (e listEnvelope) items() []json.RawMessage {
	for _, set := range [][]json.RawMessage{e.Fleets, e.Sims, e.Commands, e.Items, e.Data} {
		if len(set) > 0 {
			return set
		}
	}
	return nil
}

func (e listEnvelope) next() string {
	if e.NextPageURL != "" {
		return e.NextPageURL
	}
	if e.NextPage != "" {
		return e.NextPage
	}
	return e.Meta.NextPageURL
}

// rawFleet collects every field-name variant seen for fleets.  Note that
// encoding/json already matches names case-insensitively, so only truly
// different spellings need their own field.
type rawFleet struct {
	Sid          string `json:"sid"`
	ID           string `json:"id"`
	FleetSid     string `json:"fleet_sid"`
	UniqueName   string `json:"unique_name"`
	UniqueNameC  string `json:"uniqueName"`
	FriendlyName string `json:"friendly_name"`
	Name         string `json:"name"`
}

func (f rawFleet) sid() string {
	return firstNonEmpty(f.Sid, f.FleetSid, f.ID)
}

func (f rawFleet) name() string {
	return firstNonEmpty(f.UniqueName, f.UniqueNameC, f.FriendlyName, f.Name)
}

// rawSim collects the field-name variants seen for SIM entries.
type rawSim struct {
	Sid          string `json:"sid"`
	ID           string `json:"id"`
	SimSid       string `json:"sim_sid"`
	ICCID        string `json:"iccid"`
	UniqueName   string `json:"unique_name"`
	UniqueNameC  string `json:"uniqueName"`
	FriendlyName string `json:"friendly_name"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	FleetSid     string `json:"fleet_sid"`
	FleetSidC    string `json:"fleetSid"`
	DateUpdated  string `json:"date_updated"`
	DateUpdatedC string `json:"dateUpdated"`
}

func (s rawSim) toRemote() RemoteSim {
	return RemoteSim{
		Sid:      firstNonEmpty(s.Sid, s.SimSid, s.ID),
		ICCID:    s.ICCID,
		Name:     firstNonEmpty(s.UniqueName, s.UniqueNameC, s.FriendlyName, s.Name),
		Status:   s.Status,
		FleetSid: firstNonEmpty(s.FleetSid, s.FleetSidC),
		LastSeen: parseTime(firstNonEmpty(s.DateUpdated, s.DateUpdatedC)),
	}
}

// rawCommand is one command-log entry before normalization.
type rawCommand struct {
	Sid          string `json:"sid"`
	SimSid       string `json:"sim_sid"`
	SimSidC      string `json:"simSid"`
	Payload      string `json:"payload"`
	Command      string `json:"command"`
	Status       string `json:"status"`
	Direction    string `json:"direction"`
	DateCreated  string `json:"date_created"`
	DateCreatedC string `json:"dateCreated"`
}

func (c rawCommand) toEntry() CommandLogEntry {
	return CommandLogEntry{
		Sid:       c.Sid,
		SimSid:    firstNonEmpty(c.SimSid, c.SimSidC),
		Payload:   firstNonEmpty(c.Payload, c.Command),
		Status:    c.Status,
		Direction: c.Direction,
		CreatedAt: parseTime(firstNonEmpty(c.DateCreated, c.DateCreatedC)),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseTime accepts the timestamp formats the provider has been observed
// to emit.  Unparseable values become nil rather than an error; last-seen
// is advisory data.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
