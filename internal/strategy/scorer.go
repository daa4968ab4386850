/*

This file contains the strategy scorer. The model is asked first; every
failure falls back to the deterministic keyword and basic-score paths.

*/

package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yieldvault/rebalancer/internal/cache"
	"github.com/yieldvault/rebalancer/internal/llm"
	"github.com/yieldvault/rebalancer/internal/logger"
	"github.com/yieldvault/rebalancer/internal/metrics"
	"github.com/yieldvault/rebalancer/internal/state"
	"github.com/yieldvault/rebalancer/internal/types"
	"github.com/yieldvault/rebalancer/internal/utils"
)

var (
	ErrMalformedResponse = errors.New("malformed model response")
	ErrMissingField      = errors.New("model response is missing a field")
)

var scorerLogger = logger.GetForComponent("strategy_scorer")

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 10 * time.Minute
)

// Config holds the scorer's dependencies.
type Config struct {
	Provider    llm.Provider
	Protocols   state.ProtocolStore
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	CacheTTL    time.Duration
}

type Scorer struct {
	provider    llm.Provider
	protocols   state.ProtocolStore
	timeout     time.Duration
	maxTokens   int
	temperature float64
	analyses    *cache.TTLCache[types.StrategyPreference]
}

func validateConfig(cfg *Config) error {
	var errs []error
	if cfg.Provider == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if cfg.Protocols == nil {
		errs = append(errs, errors.New("protocol store is required"))
	}
	if cfg.Timeout < 0 || cfg.CacheTTL < 0 {
		errs = append(errs, errors.New("timeouts cannot be negative"))
	}
	return errors.Join(errs...)
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid strategy scorer config: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	analyses, err := cache.New[types.StrategyPreference](1000, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &Scorer{
		provider:    cfg.Provider,
		protocols:   cfg.Protocols,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		analyses:    analyses,
	}, nil
}

func (s *Scorer) Close() {
	s.analyses.Close()
}

// AnalyzeStrategy maps free text to a preference vector. It never fails: any
// model error produces the keyword fallback.
func (s *Scorer) AnalyzeStrategy(ctx context.Context, text string) types.StrategyPreference {
	key := normalizeText(text)
	if cached, ok := s.analyses.Get(key); ok {
		return cached
	}

	pref, err := s.analyzeWithModel(ctx, text)
	if err != nil {
		scorerLogger.Warn().
			Err(err).
			Str("provider", s.provider.Name()).
			Msg("Strategy analysis failed, using keyword fallback")
		metrics.LLMFallbacks.WithLabelValues("analyze_strategy").Inc()
		return KeywordPreference(text)
	}

	s.analyses.Set(key, pref)
	return pref
}

type analysisPayload struct {
	RiskTolerance      *float64 `json:"riskTolerance"`
	YieldPreference    *float64 `json:"yieldPreference"`
	SecurityPreference *float64 `json:"securityPreference"`
	Description        string   `json:"description"`
}

func (s *Scorer) analyzeWithModel(ctx context.Context, text string) (types.StrategyPreference, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.Complete(ctx, &llm.Request{
		SystemPrompt: analyzeSystemPrompt,
		UserPrompt:   fmt.Sprintf("Analyze this investment strategy and provide scores: %q", text),
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return types.StrategyPreference{}, err
	}
	return parseAnalysis(resp.Content)
}

func parseAnalysis(content string) (types.StrategyPreference, error) {
	var payload analysisPayload
	if err := decodeStrict(llm.StripFences(content), &payload); err != nil {
		return types.StrategyPreference{}, err
	}

	fields := map[string]*float64{
		"riskTolerance":      payload.RiskTolerance,
		"yieldPreference":    payload.YieldPreference,
		"securityPreference": payload.SecurityPreference,
	}
	for name, v := range fields {
		if v == nil {
			return types.StrategyPreference{}, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		if !utils.IsFinite(*v) {
			return types.StrategyPreference{}, fmt.Errorf("%w: %s is not finite", ErrMalformedResponse, name)
		}
	}

	return types.StrategyPreference{
		RiskTolerance:      clamp01(*payload.RiskTolerance),
		YieldPreference:    clamp01(*payload.YieldPreference),
		SecurityPreference: clamp01(*payload.SecurityPreference),
		Description:        payload.Description,
		Source:             types.PreferenceSourceLLM,
	}, nil
}

// ScoreProtocols ranks protocols for a preference. Protocols the model did
// not score correctly get BasicScore, so one bad entry never drops the rest.
func (s *Scorer) ScoreProtocols(ctx context.Context, protocols []types.Protocol, pref types.StrategyPreference) []types.RankedProtocol {
	if len(protocols) == 0 {
		return []types.RankedProtocol{}
	}

	entries, err := s.scoreWithModel(ctx, protocols, pref)
	if err != nil {
		scorerLogger.Warn().
			Err(err).
			Str("provider", s.provider.Name()).
			Int("protocols", len(protocols)).
			Msg("Protocol scoring failed, using basic scores")
	}

	ranked := make([]types.RankedProtocol, 0, len(protocols))
	fallbacks := 0
	for _, p := range protocols {
		entry, ok := entries[strconv.FormatInt(p.ID, 10)]
		if ok {
			ranked = append(ranked, types.RankedProtocol{Protocol: p, Score: entry.score, Reasoning: entry.reasons})
			continue
		}
		fallbacks++
		ranked = append(ranked, types.RankedProtocol{
			Protocol:  p,
			Score:     BasicScore(p, pref),
			Reasoning: []string{basicScoreReason},
			Fallback:  true,
		})
	}
	if fallbacks > 0 {
		metrics.LLMFallbacks.WithLabelValues("score_protocols").Add(float64(fallbacks))
		if err == nil {
			scorerLogger.Warn().Int("fallbacks", fallbacks).Msg("Some protocols were scored with basic metrics")
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Protocol.ID < ranked[j].Protocol.ID
	})
	return ranked
}

// ScoreAVSProtocols scores every active AVS protocol in the registry.
func (s *Scorer) ScoreAVSProtocols(ctx context.Context, pref types.StrategyPreference) ([]types.RankedProtocol, error) {
	active, err := s.protocols.ListActiveProtocols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	var avs []types.Protocol
	for _, p := range active {
		if p.IsAVS() {
			avs = append(avs, p)
		}
	}
	return s.ScoreProtocols(ctx, avs, pref), nil
}

type scoreEntry struct {
	score   float64
	reasons []string
}

type scorePayload struct {
	Score   *float64 `json:"score"`
	Reasons []string `json:"reasons"`
}

// scoreWithModel returns the valid per-protocol entries keyed by id. Invalid
// entries are skipped and logged.
func (s *Scorer) scoreWithModel(ctx context.Context, protocols []types.Protocol, pref types.StrategyPreference) (map[string]scoreEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.MarshalIndent(protocols, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protocols: %w", err)
	}
	resp, err := s.provider.Complete(ctx, &llm.Request{
		SystemPrompt: fmt.Sprintf(scoreSystemPromptTemplate, pref.RiskTolerance, pref.YieldPreference, pref.SecurityPreference),
		UserPrompt:   "Score these protocols and provide reasoning:\n" + string(body),
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(llm.StripFences(resp.Content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	entries := make(map[string]scoreEntry, len(raw))
	for id, msg := range raw {
		var p scorePayload
		if err := decodeStrict(string(msg), &p); err != nil {
			scorerLogger.Warn().Str("protocolID", id).Err(err).Msg("Invalid protocol score entry")
			continue
		}
		if p.Score == nil || !utils.IsFinite(*p.Score) {
			scorerLogger.Warn().Str("protocolID", id).Msg("Protocol score entry has no valid score")
			continue
		}
		reasons := p.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		entries[id] = scoreEntry{score: clamp01(*p.Score), reasons: reasons}
	}
	return entries, nil
}

func decodeStrict(content string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrMalformedResponse)
	}
	return nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
