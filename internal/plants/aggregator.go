// Package plants merges locally registered plants with the remote V2 plant
// API. Remote paths are tried in order and the first success wins; when every
// candidate fails the remote half of the response becomes {"error": "..."}
// and the request still succeeds. Display names resolve from an active local
// mapping, then the remote record, then the local plant_name.
package plants

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mindazub/ems-laravel-next-docker-009/internal/config"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/db/models"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/plantapi"
	"github.com/mindazub/ems-laravel-next-docker-009/internal/telemetry"
)

// LocalEventLimit caps the local events returned per plant.
const LocalEventLimit = 200

var errNoCandidates = errors.New("V2 API request failed: no candidate paths configured")

// RemoteClient fetches a JSON document from the remote plant API.
type RemoteClient interface {
	Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error)
}

// PlantStore reads local plants and assignments.
type PlantStore interface {
	ListPlants(ctx context.Context) ([]models.Plant, error)
	ListPlantsForUser(ctx context.Context, userID int64) ([]models.Plant, error)
	GetPlantByUID(ctx context.Context, uid string) (*models.Plant, error)
	ListAssignedUIDs(ctx context.Context, userID int64) ([]string, error)
	IsAssigned(ctx context.Context, userID int64, uid string) (bool, error)
}

// MappingStore resolves active display-name overrides.
type MappingStore interface {
	ActiveDisplayNames(ctx context.Context, uids []string) (map[string]string, error)
}

// EventStore reads locally stored plant events.
type EventStore interface {
	LatestEvents(ctx context.Context, plantUID string, limit int) ([]models.PlantEvent, error)
}

// Paths holds the ordered remote candidates per operation. "{uid}" is
// replaced with the path-escaped plant UID.
type Paths struct {
	List         []string
	Detail       []string
	Events       []string
	Reaggregated []string
}

// PathsFromConfig copies the candidate lists from plants.v2.
func PathsFromConfig(cfg config.V2APIConfig) Paths {
	return Paths{
		List:         cfg.ListPaths,
		Detail:       cfg.DetailPaths,
		Events:       cfg.EventsPaths,
		Reaggregated: cfg.ReaggPaths,
	}
}

// LocalPlant is a local row annotated with its resolved display name.
type LocalPlant struct {
	models.Plant
	DisplayName *string `json:"display_name"`
}

// ListResult is the merged plant listing.
type ListResult struct {
	Local    []LocalPlant `json:"local"`
	External interface{}  `json:"external"`
}

// DetailResult is the merged view of one plant. Local is nil when the plant
// is only known remotely.
type DetailResult struct {
	Local       *LocalPlant `json:"local"`
	External    interface{} `json:"external"`
	DisplayName *string     `json:"display_name"`
}

// EventsResult pairs local events with the remote event feed.
type EventsResult struct {
	Local    []models.PlantEvent `json:"local"`
	External interface{}         `json:"external"`
}

// ReaggregatedResult wraps remote reaggregated measurements.
type ReaggregatedResult struct {
	External interface{} `json:"external"`
}

// Aggregator builds merged plant views.
type Aggregator struct {
	plants   PlantStore
	mappings MappingStore
	events   EventStore
	remote   RemoteClient
	paths    Paths
}

// NewAggregator creates a new Aggregator
func NewAggregator(plants PlantStore, mappings MappingStore, events EventStore, remote RemoteClient, paths Paths) *Aggregator {
	return &Aggregator{
		plants:   plants,
		mappings: mappings,
		events:   events,
		remote:   remote,
		paths:    paths,
	}
}

// CanView reports whether caller may see plant uid. Customers only see
// plants assigned to them; every other role sees all plants.
func (a *Aggregator) CanView(ctx context.Context, caller *models.User, uid string) (bool, error) {
	if caller == nil || caller.Role != models.RoleCustomer {
		return true, nil
	}
	return a.plants.IsAssigned(ctx, caller.ID, uid)
}

// List returns every plant visible to caller, merged with the remote listing.
func (a *Aggregator) List(ctx context.Context, caller *models.User) (*ListResult, error) {
	var (
		local    []models.Plant
		assigned map[string]bool
		err      error
	)
	if caller != nil && caller.Role == models.RoleCustomer {
		local, err = a.plants.ListPlantsForUser(ctx, caller.ID)
		if err != nil {
			return nil, err
		}
		var uids []string
		uids, err = a.plants.ListAssignedUIDs(ctx, caller.ID)
		if err != nil {
			return nil, err
		}
		assigned = make(map[string]bool, len(uids))
		for _, uid := range uids {
			assigned[uid] = true
		}
	} else {
		local, err = a.plants.ListPlants(ctx)
		if err != nil {
			return nil, err
		}
	}

	payload, remoteErr := a.fetchFirst(ctx, a.paths.List, "", nil)

	var records []map[string]interface{}
	var rebuild func([]map[string]interface{}) interface{}
	if remoteErr == nil {
		records, rebuild = splitList(payload)
		if assigned != nil {
			records = filterAssigned(records, assigned)
		}
	}

	uids := unionUIDs(local, records)
	names, err := a.resolveNames(ctx, uids, local, records)
	if err != nil {
		return nil, err
	}

	result := &ListResult{
		Local: annotateLocal(local, names),
	}
	switch {
	case remoteErr != nil:
		result.External = errorMarker(remoteErr)
	case rebuild != nil:
		result.External = rebuild(annotateRecords(records, names))
	default:
		result.External = payload
	}
	return result, nil
}

// Detail returns the merged view of one plant.
func (a *Aggregator) Detail(ctx context.Context, uid string) (*DetailResult, error) {
	plant, err := a.plants.GetPlantByUID(ctx, uid)
	if err != nil {
		return nil, err
	}

	payload, remoteErr := a.fetchFirst(ctx, a.paths.Detail, uid, nil)

	var record map[string]interface{}
	var rebuild func(map[string]interface{}) interface{}
	if remoteErr == nil {
		record, rebuild = splitDetail(payload)
	}

	var local []models.Plant
	if plant != nil {
		local = []models.Plant{*plant}
	}
	var records []map[string]interface{}
	if record != nil {
		// The detail endpoint may omit the uid; it is the plant asked for.
		tagged := record
		if remoteUID(record) == "" {
			tagged = withField(record, "uuid", uid)
		}
		records = []map[string]interface{}{tagged}
	}

	names, err := a.resolveNames(ctx, []string{uid}, local, records)
	if err != nil {
		return nil, err
	}

	result := &DetailResult{DisplayName: names[uid]}
	if plant != nil {
		annotated := annotateLocal(local, names)
		result.Local = &annotated[0]
	}
	switch {
	case remoteErr != nil:
		result.External = errorMarker(remoteErr)
	case rebuild != nil:
		result.External = rebuild(withDisplayName(record, names[uid]))
	default:
		result.External = payload
	}
	return result, nil
}

// Events returns the newest local events and the remote event feed.
func (a *Aggregator) Events(ctx context.Context, uid string) (*EventsResult, error) {
	local, err := a.events.LatestEvents(ctx, uid, LocalEventLimit)
	if err != nil {
		return nil, err
	}
	payload, remoteErr := a.fetchFirst(ctx, a.paths.Events, uid, nil)
	result := &EventsResult{Local: local, External: payload}
	if remoteErr != nil {
		result.External = errorMarker(remoteErr)
	}
	return result, nil
}

// Reaggregated returns remote measurements for uid. rangeName defaults to
// "day"; date is passed through when set.
func (a *Aggregator) Reaggregated(ctx context.Context, uid, rangeName, date string) *ReaggregatedResult {
	if rangeName == "" {
		rangeName = "day"
	}
	query := url.Values{"range": {rangeName}}
	if date != "" {
		query.Set("date", date)
	}
	payload, remoteErr := a.fetchFirst(ctx, a.paths.Reaggregated, uid, query)
	if remoteErr != nil {
		return &ReaggregatedResult{External: errorMarker(remoteErr)}
	}
	return &ReaggregatedResult{External: payload}
}

// fetchFirst tries each candidate path in order and returns the first
// successful payload. Later candidates are not called. A configuration error
// or a cancelled context stops the loop.
func (a *Aggregator) fetchFirst(ctx context.Context, candidates []string, uid string, query url.Values) (interface{}, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}

	var lastErr error
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return nil, lastErr
		}
		path := strings.ReplaceAll(candidate, "{uid}", url.PathEscape(uid))
		raw, err := a.remote.Get(ctx, path, query)
		if err == nil {
			payload, decodeErr := decodePayload(raw)
			if decodeErr == nil {
				return payload, nil
			}
			err = decodeErr
		}
		lastErr = err

		if errors.Is(err, plantapi.ErrNotConfigured) {
			slog.Error("remote plant API is not configured", "kind", "configuration", "path", path)
			return nil, err
		}
		slog.Warn("remote plant API candidate failed",
			"kind", "remote", "path", path, "candidate", i+1, "of", len(candidates), "error", err)
		if i < len(candidates)-1 {
			telemetry.PlantAPIFallbacksTotal.Inc()
		}
	}
	return nil, lastErr
}

func decodePayload(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func errorMarker(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// resolveNames returns uid -> display name for every uid that has one.
func (a *Aggregator) resolveNames(ctx context.Context, uids []string, local []models.Plant, remote []map[string]interface{}) (map[string]*string, error) {
	mapped, err := a.mappings.ActiveDisplayNames(ctx, uids)
	if err != nil {
		return nil, err
	}

	remoteNames := make(map[string]string, len(remote))
	for _, r := range remote {
		if uid := remoteUID(r); uid != "" {
			if name := remoteName(r); name != "" {
				remoteNames[uid] = name
			}
		}
	}
	localNames := make(map[string]string, len(local))
	for _, p := range local {
		if p.PlantName != nil && strings.TrimSpace(*p.PlantName) != "" {
			localNames[p.UID] = *p.PlantName
		}
	}

	names := make(map[string]*string, len(uids))
	for _, uid := range uids {
		if name := ResolveDisplayName(mapped[uid], remoteNames[uid], localNames[uid]); name != "" {
			n := name
			names[uid] = &n
		}
	}
	return names, nil
}

// ResolveDisplayName applies the precedence mapping > remote > local. An
// empty result means the plant has no display name.
func ResolveDisplayName(mapping, remote, local string) string {
	for _, candidate := range []string{mapping, remote, local} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

func unionUIDs(local []models.Plant, remote []map[string]interface{}) []string {
	seen := make(map[string]bool, len(local)+len(remote))
	uids := make([]string, 0, len(local)+len(remote))
	add := func(uid string) {
		if uid != "" && !seen[uid] {
			seen[uid] = true
			uids = append(uids, uid)
		}
	}
	for _, p := range local {
		add(p.UID)
	}
	for _, r := range remote {
		add(remoteUID(r))
	}
	return uids
}

func annotateLocal(local []models.Plant, names map[string]*string) []LocalPlant {
	out := make([]LocalPlant, 0, len(local))
	for _, p := range local {
		out = append(out, LocalPlant{Plant: p, DisplayName: names[p.UID]})
	}
	return out
}

func filterAssigned(records []map[string]interface{}, assigned map[string]bool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		if assigned[remoteUID(r)] {
			out = append(out, r)
		}
	}
	return out
}
