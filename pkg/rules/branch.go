package rules

import (
	"github.com/driptide/driptide/pkg/models"
)

// SelectBranch evaluates branches in declared order and returns the id of the
// first whose rule set passes. A default branch is chosen only when no other
// branch matched; no match and no default is a NoBranchMatched error for the
// workflow's error-handling policy to resolve.
func SelectBranch(branches []models.ConditionBranch, ctx *models.ExecutionContext) (string, error) {
	var defaultBranch *models.ConditionBranch

	for i := range branches {
		branch := &branches[i]

		if branch.IsDefault {
			if defaultBranch == nil {
				defaultBranch = branch
			}

			continue
		}

		matched, err := EvaluateRuleSet(branch.Rules, ctx)
		if err != nil {
			return "", err
		}

		if matched {
			return branch.ID, nil
		}
	}

	if defaultBranch != nil {
		return defaultBranch.ID, nil
	}

	return "", models.NewExecutionError(models.ErrCodeNoBranchMatched, "", "no branch matched and no default branch declared")
}
