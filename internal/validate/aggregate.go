package validate

import "github.com/refcheck/refcheck/internal/model"

// aggregate folds per-database outcomes into one verdict. dbResults must be
// in registry order; ChosenSource precedence follows it.
//
// Precedence: a reported retraction beats everything, any hit verifies, a
// unanimous miss across the enabled databases marks the reference likely
// hallucinated, and anything short of unanimity (failures, skips) stays
// unverified. Identifier side checks and retraction notices are lifted onto
// the result as metadata; an author mismatch never blocks verification.
func aggregate(ref model.Reference, dbResults []model.DbResult) model.ValidationResult {
	res := model.ValidationResult{Reference: ref, DbResults: dbResults}

	notFound := 0
	for _, dr := range dbResults {
		switch dr.Status {
		case model.DbFound:
			if res.ChosenSource == "" {
				res.ChosenSource = dr.DbName
				if dr.Matched != nil {
					res.FoundAuthors = dr.Matched.Authors
					res.PaperURL = dr.Matched.URL
				}
			}
		case model.DbNotFound:
			notFound++
		case model.DbTimeout, model.DbError:
			res.FailedDBs = append(res.FailedDBs, dr.DbName)
		}

		if res.Retraction == nil && dr.Retraction != nil && dr.Retraction.Retracted {
			res.Retraction = dr.Retraction
		}
		if res.DoiInfo == nil && dr.DoiCheck != nil {
			res.DoiInfo = dr.DoiCheck
		}
		if res.ArxivInfo == nil && dr.ArxivCheck != nil {
			res.ArxivInfo = dr.ArxivCheck
		}
	}

	switch {
	case res.Retraction != nil:
		res.Status = model.StatusRetracted
	case res.ChosenSource != "":
		res.Status = model.StatusVerified
	case len(dbResults) > 0 && notFound == len(dbResults):
		res.Status = model.StatusLikelyHallucinated
	default:
		res.Status = model.StatusUnverified
	}
	return res
}
