package llm

// Cost is the dollar cost of one assistant message, broken down by token
// class. Values derive from the model's per-million-token rates.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
	Total      float64 `json:"total"`
}

// Usage is normalized token accounting for one assistant message.
//
// Input counts non-cached input tokens only: providers that fold cached
// tokens into their prompt count have the cache count subtracted during
// normalization. TotalTokens is the component sum for providers that do not
// report a total directly.
type Usage struct {
	Input       int  `json:"input"`
	Output      int  `json:"output"`
	CacheRead   int  `json:"cacheRead"`
	CacheWrite  int  `json:"cacheWrite"`
	TotalTokens int  `json:"totalTokens"`
	Cost        Cost `json:"cost"`
}

// MergeEarliest folds a streaming usage update into u. Input-side counters
// are captured at the earliest moment they appear and never overwritten by a
// later update that omits them: Anthropic reports input tokens on
// message_start and only output tokens on message_delta, so a blind overwrite
// would zero the input count at stream end.
func (u *Usage) MergeEarliest(update Usage) {
	if u.Input == 0 && update.Input > 0 {
		u.Input = update.Input
	}
	if u.CacheRead == 0 && update.CacheRead > 0 {
		u.CacheRead = update.CacheRead
	}
	if u.CacheWrite == 0 && update.CacheWrite > 0 {
		u.CacheWrite = update.CacheWrite
	}
	if update.Output > 0 {
		u.Output = update.Output
	}
	if update.TotalTokens > 0 {
		u.TotalTokens = update.TotalTokens
	}
}

// Finalize fills in TotalTokens (when the provider reported none) and the
// cost breakdown from the model's per-million rates.
func (u *Usage) Finalize(m *Model) {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.Input + u.Output + u.CacheRead + u.CacheWrite
	}
	if m == nil {
		return
	}
	u.Cost = Cost{
		Input:      float64(u.Input) * m.Cost.Input / 1e6,
		Output:     float64(u.Output) * m.Cost.Output / 1e6,
		CacheRead:  float64(u.CacheRead) * m.Cost.CacheRead / 1e6,
		CacheWrite: float64(u.CacheWrite) * m.Cost.CacheWrite / 1e6,
	}
	u.Cost.Total = u.Cost.Input + u.Cost.Output + u.Cost.CacheRead + u.Cost.CacheWrite
}
