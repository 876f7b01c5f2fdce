// Чистые функции оценки: скоринг предложений при закрытии тендера и
// итоговая оценка этапа при голосовании государства. Побочных эффектов нет,
// результат сохраняет вызывающая сторона.
package scoring

import "math"

// Веса критериев предложения: сумма, опыт, рейтинг.
const (
	bidWeight    = 0.6
	expWeight    = 0.25
	ratingWeight = 0.15
)

// Веса итоговой оценки этапа и порог рекомендации.
const (
	aiWeight       = 0.4
	publicWeight   = 0.3
	govWeight      = 0.3
	RecommendLimit = 70
)

type BidInput struct {
	ID              int
	Amount          float64
	ExperienceYears int
	Rating          float64
}

type BidResult struct {
	ID          int
	Score       float64
	Recommended bool
}

// EvaluateBids считает нормализованный скор каждого предложения (меньше —
// лучше) и помечает ровно одно рекомендованным. Ничья разрешается в пользу
// меньшего ID — детерминированный полный порядок.
func EvaluateBids(bids []BidInput) []BidResult {
	if len(bids) == 0 {
		return nil
	}

	minAmount, maxAmount := bids[0].Amount, bids[0].Amount
	maxExp, maxRating := 0, 0.0
	for _, b := range bids {
		minAmount = math.Min(minAmount, b.Amount)
		maxAmount = math.Max(maxAmount, b.Amount)
		if b.ExperienceYears > maxExp {
			maxExp = b.ExperienceYears
		}
		maxRating = math.Max(maxRating, b.Rating)
	}

	results := make([]BidResult, len(bids))
	best := 0
	for i, b := range bids {
		bidNorm := 0.0
		if maxAmount != minAmount {
			bidNorm = (b.Amount - minAmount) / (maxAmount - minAmount)
		}
		expNorm := 1.0
		if maxExp != 0 {
			expNorm = 1 - float64(b.ExperienceYears)/float64(maxExp)
		}
		ratingNorm := 1.0
		if maxRating != 0 {
			ratingNorm = 1 - b.Rating/maxRating
		}

		score := bidWeight*bidNorm + expWeight*expNorm + ratingWeight*ratingNorm
		results[i] = BidResult{ID: b.ID, Score: round4(score)}

		if results[i].Score < results[best].Score ||
			(results[i].Score == results[best].Score && results[i].ID < results[best].ID) {
			best = i
		}
	}
	results[best].Recommended = true
	return results
}

type FinalEvaluation struct {
	AIScore     int
	PublicScore int
	GovScore    int
	FinalScore  int
	Recommended bool
}

// MilestoneFinalScore сводит три источника оценки этапа в итоговый балл
// 0–100 (больше — лучше). Без публичных голосов публичная оценка
// нейтральна (50).
func MilestoneFinalScore(aiScore, approve, reject int, govApprove bool) FinalEvaluation {
	ai := aiScore
	if ai < 0 {
		ai = 0
	}
	if ai > 100 {
		ai = 100
	}

	public := 50
	if total := approve + reject; total > 0 {
		public = int(math.Round(float64(approve) / float64(total) * 100))
	}

	gov := 0
	if govApprove {
		gov = 100
	}

	final := int(math.Round(aiWeight*float64(ai) + publicWeight*float64(public) + govWeight*float64(gov)))

	return FinalEvaluation{
		AIScore:     ai,
		PublicScore: public,
		GovScore:    gov,
		FinalScore:  final,
		Recommended: final >= RecommendLimit,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
