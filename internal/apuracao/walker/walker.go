// Package walker runs a draw: it resolves the primary match for a drawn
// number and walks backward through the store collecting a fixed-length run
// of records, one per contact key.
//
// A single state machine serves both draw modes. A partition width of zero
// selects the flat walk over the whole store; a positive width selects the
// series walk, which resolves the drawn series first, walks inside it and,
// when short, completes the run from the next lower series.
package walker

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/eligibility"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/partition"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/record"
	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/resolver"
	apperrors "github.com/Adithya-Monish-Kumar-K/apuracao/pkg/errors"
)

const (
	DefaultFlatLength        = 16
	DefaultPartitionedLength = 10
	DefaultPartitionWidth    = 2
)

// Mode names the two draw variants.
type Mode string

const (
	ModeFlat        Mode = "flat"
	ModePartitioned Mode = "partitioned"
)

// ParseMode accepts the mode names; an empty string means flat.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFlat:
		return ModeFlat, nil
	case ModePartitioned:
		return ModePartitioned, nil
	default:
		return "", apperrors.Invalidf("unknown draw mode %q", s)
	}
}

// State is a walker state.
type State int

const (
	StateInit State = iota
	StateResolvePrimary
	StateWalkBackward
	StateResolvePartition
	StateResolveNumberInPartition
	StateWalkWithinPartition
	StateFallbackToLowerPartition
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateInit:                     "init",
	StateResolvePrimary:           "resolve_primary",
	StateWalkBackward:             "walk_backward",
	StateResolvePartition:         "resolve_partition",
	StateResolveNumberInPartition: "resolve_number_in_partition",
	StateWalkWithinPartition:      "walk_within_partition",
	StateFallbackToLowerPartition: "fallback_to_lower_partition",
	StateDone:                     "done",
	StateFailed:                   "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Config selects the draw mode. PartitionWidth 0 is flat.
type Config struct {
	PartitionWidth int
	Length         int
}

// FlatConfig is the 16-position flat draw.
func FlatConfig() Config {
	return Config{Length: DefaultFlatLength}
}

// PartitionedConfig is the 10-position series draw with 2-digit series.
func PartitionedConfig() Config {
	return Config{PartitionWidth: DefaultPartitionWidth, Length: DefaultPartitionedLength}
}

// Mode reports the draw variant the config selects.
func (c Config) Mode() Mode {
	if c.PartitionWidth > 0 {
		return ModePartitioned
	}
	return ModeFlat
}

// Request carries the caller's draw parameters. In partitioned mode an empty
// DrawnPartition means DrawnNumber is the full code and its leading digits
// are the series; otherwise DrawnNumber is the within-series number.
type Request struct {
	DrawnNumber    string
	DrawnPartition string
	IgnoredKeys    []string
}

// Source tells how a position was filled.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceWalk     Source = "walk"
	SourceFallback Source = "fallback"
)

// Position is one selected record.
type Position struct {
	Position              int    `json:"posicao"`
	Number                string `json:"numero"`
	ContactKey            string `json:"chave_contato"`
	Partition             string `json:"serie,omitempty"`
	NumberWithinPartition string `json:"numero_base,omitempty"`
	Date                  string `json:"data,omitempty"`
	Product               string `json:"produto,omitempty"`
	Source                Source `json:"origem"`
}

// Stats summarizes a run.
type Stats struct {
	TotalRecords        int      `json:"total_registros"`
	IgnoredKeys         int      `json:"chaves_ignoradas"`
	Found               int      `json:"numeros_encontrados"`
	Target              int      `json:"numeros_alvo"`
	Partitions          int      `json:"total_series,omitempty"`
	AvailablePartitions []string `json:"series_disponiveis,omitempty"`
	PartitionUsed       string   `json:"serie_utilizada,omitempty"`
	FallbackPartition   string   `json:"serie_complementar,omitempty"`
}

// Selection is the result of a run. Positions[0] is always the primary match.
type Selection struct {
	Mode      Mode          `json:"modo"`
	Primary   record.Record `json:"numero_sorteado"`
	Match     string        `json:"tipo_correspondencia"`
	Positions []Position    `json:"numeros_selecionados"`
	Stats     Stats         `json:"estatisticas"`
}

// Complete reports whether every target position was filled.
func (s *Selection) Complete() bool {
	return s.Stats.Found == s.Stats.Target
}

// Option configures a Walker.
type Option func(*Walker)

// WithObserver attaches an observer to every run.
func WithObserver(o Observer) Option {
	return func(w *Walker) {
		if o != nil {
			w.observer = o
		}
	}
}

// Walker is safe for concurrent use: each Run keeps its state on its own
// stack and never mutates the store.
type Walker struct {
	cfg      Config
	observer Observer
}

// New creates a Walker. A non-positive Length takes the mode's default.
func New(cfg Config, opts ...Option) *Walker {
	if cfg.PartitionWidth < 0 {
		cfg.PartitionWidth = 0
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultFlatLength
		if cfg.PartitionWidth > 0 {
			cfg.Length = DefaultPartitionedLength
		}
	}
	w := &Walker{cfg: cfg, observer: NopObserver()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the walker's effective configuration.
func (w *Walker) Config() Config {
	return w.cfg
}

// run holds the mutable state of one invocation.
type run struct {
	cfg      Config
	observer Observer
	store    *record.Store
	index    *partition.Index

	used    eligibility.KeySet
	ignored eligibility.KeySet

	state            State
	currentValue     int64
	currentPartition string
	sel              *Selection
}

// Run executes one draw over store. The store must have been built with the
// walker's partition width.
func (w *Walker) Run(store *record.Store, req Request) (*Selection, error) {
	r := &run{
		cfg:      w.cfg,
		observer: w.observer,
		store:    store,
		used:     eligibility.NewKeySet(),
		ignored:  eligibility.NewKeySet(req.IgnoredKeys...),
		sel: &Selection{
			Mode:      w.cfg.Mode(),
			Positions: make([]Position, 0, w.cfg.Length),
		},
	}
	r.enter(StateInit)

	var err error
	if w.cfg.PartitionWidth == 0 {
		err = r.runFlat(req)
	} else {
		err = r.runPartitioned(req)
	}
	if err != nil {
		r.enter(StateFailed)
		r.emit(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	r.sel.Stats.Found = len(r.sel.Positions)
	r.enter(StateDone)
	r.emit(Event{Kind: EventDone, Found: r.sel.Stats.Found})
	return r.sel, nil
}

func (r *run) runFlat(req Request) error {
	if !record.IsDigits(req.DrawnNumber) {
		return apperrors.Invalidf("numero_sorteado %q must be a non-empty digit string", req.DrawnNumber)
	}
	target, ok := record.ParseNumber(req.DrawnNumber)
	if !ok {
		return apperrors.Invalidf("numero_sorteado %q is out of range", req.DrawnNumber)
	}
	if err := r.checkStore(); err != nil {
		return err
	}
	r.initStats()

	r.enter(StateResolvePrimary)
	if err := r.resolvePrimary(r.store.Records(), target); err != nil {
		return err
	}

	r.enter(StateWalkBackward)
	r.walk(r.store.Records(), r.cfg.Length-1)
	return nil
}

func (r *run) runPartitioned(req Request) error {
	requested, within, err := splitDrawn(req, r.cfg.PartitionWidth)
	if err != nil {
		return err
	}
	target, ok := record.ParseNumber(within)
	if !ok {
		return apperrors.Invalidf("numero_sorteado %q is out of range", within)
	}
	if err := r.checkStore(); err != nil {
		return err
	}
	r.index = partition.New(r.store)
	if r.index.Len() == 0 {
		return fmt.Errorf("no series in store: %w", apperrors.ErrEmptyStore)
	}
	r.initStats()

	r.enter(StateResolvePartition)
	r.currentPartition = r.index.Resolve(requested)
	r.sel.Stats.PartitionUsed = r.currentPartition
	r.emit(Event{Kind: EventPartitionResolved, Requested: requested, Partition: r.currentPartition})

	r.enter(StateResolveNumberInPartition)
	candidates := r.store.InPartition(r.currentPartition)
	if len(candidates) == 0 {
		return fmt.Errorf("series %s resolved but holds no records: %w", r.currentPartition, apperrors.ErrRecordNotFound)
	}
	if err := r.resolvePrimary(candidates, target); err != nil {
		return err
	}

	r.enter(StateWalkWithinPartition)
	need := r.cfg.Length - 1
	found := r.walk(candidates, need)
	if found < need {
		r.enter(StateFallbackToLowerPartition)
		r.fillFromLowerPartition(need - found)
	}
	return nil
}

// splitDrawn returns the requested series and the within-series number.
func splitDrawn(req Request, width int) (string, string, error) {
	if req.DrawnPartition != "" {
		if len(req.DrawnPartition) != width || !record.IsDigits(req.DrawnPartition) {
			return "", "", apperrors.Invalidf("serie_sorteada %q must be exactly %d digits", req.DrawnPartition, width)
		}
		if !record.IsDigits(req.DrawnNumber) {
			return "", "", apperrors.Invalidf("numero_sorteado %q must be a non-empty digit string", req.DrawnNumber)
		}
		return req.DrawnPartition, req.DrawnNumber, nil
	}
	if !record.IsDigits(req.DrawnNumber) || len(req.DrawnNumber) <= width {
		return "", "", apperrors.Invalidf("numero_sorteado %q must be more than %d digits when no serie is given", req.DrawnNumber, width)
	}
	return req.DrawnNumber[:width], req.DrawnNumber[width:], nil
}

func (r *run) checkStore() error {
	if r.store == nil || r.store.Usable() == 0 {
		return apperrors.ErrEmptyStore
	}
	if r.store.PartitionWidth() != r.cfg.PartitionWidth {
		return apperrors.Invalidf("store partition width %d does not match draw mode width %d",
			r.store.PartitionWidth(), r.cfg.PartitionWidth)
	}
	return nil
}

func (r *run) initStats() {
	r.sel.Stats.TotalRecords = r.store.Len()
	r.sel.Stats.IgnoredKeys = len(r.ignored)
	r.sel.Stats.Target = r.cfg.Length
	if r.index != nil {
		r.sel.Stats.Partitions = r.index.Len()
		r.sel.Stats.AvailablePartitions = r.index.Distinct()
	}
}

// resolvePrimary picks position 1, wrapping around to the minimum when the
// target is below every eligible record.
func (r *run) resolvePrimary(candidates []record.Record, target int64) error {
	rec, match := resolver.Resolve(candidates, target, eligibility.NotIn(r.ignored), resolver.WrapAround)
	if match == resolver.NotFound {
		return fmt.Errorf("resolving numero_sorteado: %w", apperrors.ErrNoEligibleRecords)
	}
	r.sel.Primary = rec
	r.sel.Match = match.String()
	pos := r.appendPosition(rec, SourcePrimary)
	r.emit(Event{Kind: EventPrimaryResolved, Match: match, Position: &pos})
	return nil
}

// walk collects up to limit records strictly below the current value, each
// step taking the closest inferior record with an unused key. It returns the
// number of records appended.
func (r *run) walk(candidates []record.Record, limit int) int {
	found := 0
	for found < limit {
		eligible := eligibility.All(
			eligibility.Below(r.currentValue),
			eligibility.NotIn(r.used, r.ignored),
		)
		rec, match := resolver.Resolve(candidates, r.currentValue, eligible, resolver.NoWrap)
		if match == resolver.NotFound {
			r.emit(Event{Kind: EventWalkStopped, Found: found})
			break
		}
		pos := r.appendPosition(rec, SourceWalk)
		r.emit(Event{Kind: EventSelected, Position: &pos})
		found++
	}
	return found
}

// fillFromLowerPartition completes the run from the single next-lower series,
// highest within-series numbers first. It never looks further down.
func (r *run) fillFromLowerPartition(need int) {
	lower, ok := r.index.Below(r.currentPartition)
	if !ok {
		r.emit(Event{Kind: EventFallback, Requested: r.currentPartition, Found: 0})
		return
	}
	r.sel.Stats.FallbackPartition = lower

	numeric := eligibility.Numeric()
	candidates := make([]record.Record, 0, len(r.store.InPartition(lower)))
	for _, rec := range r.store.InPartition(lower) {
		if numeric(&rec) {
			candidates = append(candidates, rec)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		vi, _ := candidates[i].Value()
		vj, _ := candidates[j].Value()
		return vi > vj
	})

	filled := 0
	notUsed := eligibility.NotIn(r.used, r.ignored)
	for i := range candidates {
		if filled == need {
			break
		}
		if !notUsed(&candidates[i]) {
			continue
		}
		pos := r.appendPosition(candidates[i], SourceFallback)
		r.emit(Event{Kind: EventSelected, Position: &pos})
		filled++
	}
	r.emit(Event{Kind: EventFallback, Requested: r.currentPartition, Partition: lower, Found: filled})
}

func (r *run) appendPosition(rec record.Record, src Source) Position {
	r.used.Add(rec.ContactKey)
	if v, ok := rec.Value(); ok && src != SourceFallback {
		r.currentValue = v
	}
	pos := Position{
		Position:              len(r.sel.Positions) + 1,
		Number:                rec.Number,
		ContactKey:            rec.ContactKey,
		Partition:             rec.Partition,
		NumberWithinPartition: rec.NumberWithinPartition,
		Date:                  rec.Date,
		Product:               rec.Product,
		Source:                src,
	}
	r.sel.Positions = append(r.sel.Positions, pos)
	return pos
}

func (r *run) enter(s State) {
	r.state = s
	r.emit(Event{Kind: EventStateEntered})
}

func (r *run) emit(e Event) {
	e.Mode = r.cfg.Mode()
	e.State = r.state
	r.observer.Observe(e)
}
