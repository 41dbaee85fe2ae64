package consolidate

// qualityScore accumulates the data-quality score of one consolidated row:
// start at 1.00, subtract per defect, record a flag per defect, clamp to
// [0.00, 1.00] at the end.
type qualityScore struct {
	score float64
	flags []string
}

func newQualityScore() *qualityScore {
	return &qualityScore{score: 1.0}
}

func (q *qualityScore) penalize(amount float64, flag string) {
	q.score -= amount
	q.flags = append(q.flags, flag)
}

func (q *qualityScore) bonus(amount float64, flag string) {
	q.score += amount
	if flag != "" {
		q.flags = append(q.flags, flag)
	}
}

func (q *qualityScore) flag(flag string) {
	q.flags = append(q.flags, flag)
}

// Score returns the clamped final score.
func (q *qualityScore) Score() float64 {
	switch {
	case q.score < 0:
		return 0
	case q.score > 1:
		return 1
	default:
		return q.score
	}
}

// Flags returns the accumulated flag list, nil when clean so the JSONB
// column lands NULL.
func (q *qualityScore) Flags() any {
	if len(q.flags) == 0 {
		return nil
	}
	return q.flags
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
