// Package sighting decodes webhook payloads into the Sighting DTO (§3).
package sighting

import (
	"encoding/json"
	"fmt"
)

// SeenType classifies how a sighting was observed.
type SeenType string

const (
	SeenWild       SeenType = "wild"
	SeenNearbyStop SeenType = "nearby_stop"
	SeenNearbyCell SeenType = "nearby_cell"
	SeenOther      SeenType = "other"
)

// Sighting is a single inbound observation, parsed from a webhook event.
// It is transient: nothing in this package owns lifecycle state.
type Sighting struct {
	SpeciesID    int
	Form         int
	HasForm      bool
	Lat          float64
	Lon          float64
	SpawnpointID string
	EncounterID  string
	DespawnAt    int64 // unix seconds; 0 means absent
	HasDespawn   bool
	SeenType     SeenType

	IVAttack  int
	IVDefense int
	IVStamina int
	HasIV     bool
}

// webhookMessage is the raw "message" object inside a webhook event.
type webhookMessage struct {
	PokemonID          int      `json:"pokemon_id"`
	Form               *int     `json:"form"`
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
	SpawnpointID       string   `json:"spawnpoint_id"`
	EncounterID        string   `json:"encounter_id"`
	DisappearTime      *int64   `json:"disappear_time"`
	SeenType           string   `json:"seen_type"`
	IndividualAttack   *int     `json:"individual_attack"`
	IndividualDefense  *int     `json:"individual_defense"`
	IndividualStamina  *int     `json:"individual_stamina"`
}

// webhookEnvelope is a single {type, message} webhook event.
type webhookEnvelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// ParseBody decodes a webhook body, which is either a single envelope
// object or a JSON array of them (§6.1). Only type=="pokemon" events
// are returned as Sightings; everything else is silently skipped.
func ParseBody(body []byte) ([]Sighting, error) {
	envelopes, err := parseEnvelopes(body)
	if err != nil {
		return nil, err
	}

	sightings := make([]Sighting, 0, len(envelopes))
	for _, env := range envelopes {
		if env.Type != "pokemon" {
			continue
		}
		s, err := parseMessage(env.Message)
		if err != nil {
			// Malformed input: drop this one event, keep the rest (§7).
			continue
		}
		sightings = append(sightings, s)
	}
	return sightings, nil
}

func parseEnvelopes(body []byte) ([]webhookEnvelope, error) {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var envelopes []webhookEnvelope
		if err := json.Unmarshal(body, &envelopes); err != nil {
			return nil, fmt.Errorf("decode webhook array: %w", err)
		}
		return envelopes, nil
	}

	var single webhookEnvelope
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("decode webhook object: %w", err)
	}
	return []webhookEnvelope{single}, nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func parseMessage(raw json.RawMessage) (Sighting, error) {
	var m webhookMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Sighting{}, fmt.Errorf("decode pokemon message: %w", err)
	}
	if m.PokemonID == 0 {
		return Sighting{}, fmt.Errorf("missing species_id")
	}

	s := Sighting{
		SpeciesID:    m.PokemonID,
		Lat:          m.Latitude,
		Lon:          m.Longitude,
		SpawnpointID: m.SpawnpointID,
		EncounterID:  m.EncounterID,
		SeenType:     parseSeenType(m.SeenType),
	}
	if m.Form != nil {
		s.Form = *m.Form
		s.HasForm = true
	}
	if m.DisappearTime != nil {
		s.DespawnAt = *m.DisappearTime
		s.HasDespawn = true
	}
	if m.IndividualAttack != nil && m.IndividualDefense != nil && m.IndividualStamina != nil {
		s.IVAttack = *m.IndividualAttack
		s.IVDefense = *m.IndividualDefense
		s.IVStamina = *m.IndividualStamina
		s.HasIV = true
	}
	return s, nil
}

func parseSeenType(raw string) SeenType {
	switch SeenType(raw) {
	case SeenWild, SeenNearbyStop, SeenNearbyCell:
		return SeenType(raw)
	default:
		return SeenOther
	}
}

// SpeciesKey is the census/priority-list key for a species+form pair:
// "{id}" when form is absent or zero, "{id}:{form}" otherwise.
func (s Sighting) SpeciesKey() string {
	if s.HasForm && s.Form != 0 {
		return fmt.Sprintf("%d:%d", s.SpeciesID, s.Form)
	}
	return fmt.Sprintf("%d", s.SpeciesID)
}
