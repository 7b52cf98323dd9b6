// Package selector chooses the number of hidden states for a category's HMM.
//
// A selector is built for one category of a corpus and one strategy, used
// once through Select, and discarded. Every strategy searches the inclusive
// range [MinStates, MaxStates], fits one model per candidate and ranks the
// candidates by a strategy specific score.
//
// # Strategies
//
//   - Constant: no search, the model is fit with ConstantStates.
//   - BIC: lowest -2·logL + p·ln(N), p = n² + 2·n·d - 1.
//   - DIC: highest logL(own) minus the mean logL of every other category.
//   - CV: highest mean held-out logL over min(3, sequences) folds.
//
// Ties go to the smallest state count.
//
// # Failures
//
// A candidate whose fit or score fails is excluded from ranking; the error
// is kept on its Candidate. When no candidate can be ranked the selector
// falls back to the Constant model and marks the Result. Select never
// returns an error: Result.Err is only set when the Constant fit failed too.
//
// # Usage
//
//	sel, err := selector.New(selector.StrategyBIC, index, "BOOK", selector.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	res := sel.Select(ctx)
package selector
