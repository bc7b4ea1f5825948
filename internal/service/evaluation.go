package service

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"backfeed/internal/domain"
	"backfeed/internal/logger"
	"backfeed/internal/policy"
	"backfeed/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// EvaluationReceipt is the committed evaluation together with the amounts
// each step moved.
type EvaluationReceipt struct {
	Evaluation *domain.Evaluation `json:"evaluation"`
	Revote     bool               `json:"revote"`

	EvaluatorTokenReward        float64 `json:"evaluator_token_reward"`
	Fee                         float64 `json:"fee"`
	AgreementRewards            int     `json:"agreement_rewards"`
	ContributorTokenReward      float64 `json:"contributor_token_reward"`
	ContributorReputationReward float64 `json:"contributor_reputation_reward"`
	MaxScore                    float64 `json:"max_score"`
}

// CreateEvaluation records a vote and settles every transfer it triggers:
// the optional evaluator token reward, the evaluation fee, the agreement
// rewards of evaluators who voted the same value and the contributor reward.
// A previous vote by the same evaluator is superseded, not removed.
func (s *AccountingService) CreateEvaluation(ctx context.Context, userID, contributionID int64, value int) (r *EvaluationReceipt, err error) {
	ctx, finish := s.startOp(ctx, "CreateEvaluation",
		attribute.Int64("user_id", userID),
		attribute.Int64("contribution_id", contributionID),
		attribute.Int("value", value),
	)
	defer func() { finish(err) }()

	if userID == 0 {
		return nil, fmt.Errorf("%w: user_id", ErrMissingID)
	}
	if contributionID == 0 {
		return nil, fmt.Errorf("%w: contribution_id", ErrMissingID)
	}

	var (
		sess *session
		c    *domain.Contribution
	)
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		sess = newSession(ctx, tx, now)
		r = &EvaluationReceipt{}

		var err error
		c, err = sess.contribution(contributionID)
		if err != nil {
			return err
		}
		evaluator, err := sess.user(userID)
		if err != nil {
			return err
		}
		ct, ok := s.policy.Type(c.Type)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownContributionType, c.Type)
		}
		if !ct.Allows(value) {
			return fmt.Errorf("%w: %d", ErrInvalidEvaluationValue, value)
		}

		superseded, err := tx.DeactivateEvaluations(ctx, c.ID, evaluator.ID, now)
		if err != nil {
			return fmt.Errorf("supersede evaluations: %w", err)
		}
		r.Revote = superseded > 0

		e := &domain.Evaluation{
			UserID:         evaluator.ID,
			ContributionID: c.ID,
			Value:          value,
			Active:         true,
			CreatedAt:      now,
		}
		if err := tx.InsertEvaluation(ctx, e); err != nil {
			return fmt.Errorf("insert evaluation: %w", err)
		}
		r.Evaluation = e

		if s.policy.RewardTokensToEvaluators && !r.Revote {
			if r.EvaluatorTokenReward, err = s.rewardEvaluatorWithTokens(sess, evaluator, c, e); err != nil {
				return err
			}
		}
		if r.Fee, err = s.payEvaluationFee(sess, ct, evaluator, c, e); err != nil {
			return err
		}
		if r.AgreementRewards, err = s.rewardPreviousEvaluators(sess, ct, evaluator, c, e); err != nil {
			return err
		}
		if value == domain.EvaluationUpvote {
			if r.ContributorTokenReward, r.ContributorReputationReward, err = s.rewardContributor(sess, ct, c, e); err != nil {
				return err
			}
		}
		r.MaxScore = c.MaxScore

		return sess.commit()
	})
	if err != nil {
		return nil, err
	}
	sess.observe()

	EvaluationsTotal.WithLabelValues(c.Type, strconv.Itoa(value), strconv.FormatBool(r.Revote)).Inc()
	logger.WithContext(ctx).Debug("evaluation committed",
		"evaluation_id", r.Evaluation.ID,
		"contribution_id", c.ID,
		"evaluator_id", userID,
		"value", value,
		"revote", r.Revote,
		"fee", r.Fee,
		"max_score", r.MaxScore,
	)
	if s.publisher != nil {
		s.publisher.Publish(EvaluationEvent{
			EvaluationID:          r.Evaluation.ID,
			ContributionID:        c.ID,
			ContributionType:      c.Type,
			EvaluatorID:           userID,
			Value:                 value,
			Revote:                r.Revote,
			Fee:                   r.Fee,
			MaxScore:              r.MaxScore,
			ContributorTokens:     r.ContributorTokenReward,
			ContributorReputation: r.ContributorReputationReward,
			At:                    r.Evaluation.CreatedAt,
		})
	}
	return r, nil
}

// rewardEvaluatorWithTokens pays a first-time evaluator from the token fund
// in proportion to their share of the reputation that has not voted yet.
func (s *AccountingService) rewardEvaluatorWithTokens(sess *session, evaluator *domain.User, c *domain.Contribution, e *domain.Evaluation) (float64, error) {
	engaged, err := sess.evaluatorReputation(repository.EvaluationFilter{
		ContributionID:     c.ID,
		ExcludeEvaluatorID: evaluator.ID,
	})
	if err != nil {
		return 0, err
	}
	total, err := sess.totalReputation()
	if err != nil {
		return 0, err
	}
	unvoted := total - engaged
	if unvoted <= 0 {
		return 0, nil
	}

	reward := c.TokenFund * (evaluator.Reputation / unvoted)
	m := movement{kind: domain.LedgerEvaluatorTokens, contribution: c, evaluation: e}
	sess.addTokens(evaluator, reward, m)
	sess.addFund(c, -reward, m)
	return reward, nil
}

// payEvaluationFee burns part of the evaluator's reputation. The fee shrinks
// as the share of reputation already engaged on the contribution grows.
func (s *AccountingService) payEvaluationFee(sess *session, ct policy.ContributionType, evaluator *domain.User, c *domain.Contribution, e *domain.Evaluation) (float64, error) {
	engaged, err := sess.evaluatorReputation(repository.EvaluationFilter{ContributionID: c.ID})
	if err != nil {
		return 0, err
	}
	total, err := sess.totalReputation()
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	stakeFee := evaluator.Reputation * (1 - math.Pow(engaged/total, s.policy.Beta))
	fee := ct.Stake * stakeFee
	sess.addReputation(evaluator, -fee, movement{kind: domain.LedgerEvaluationFee, contribution: c, evaluation: e})
	return fee, nil
}

// rewardPreviousEvaluators grows the reputation of every other active
// evaluator who voted the same value. Deltas are computed from the
// reputations as they stood before this pass and applied in evaluation id
// order. It returns the number of evaluators rewarded.
func (s *AccountingService) rewardPreviousEvaluators(sess *session, ct policy.ContributionType, evaluator *domain.User, c *domain.Contribution, e *domain.Evaluation) (int, error) {
	value := e.Value
	equalRep, err := sess.evaluatorReputation(repository.EvaluationFilter{
		ContributionID:     c.ID,
		Value:              &value,
		ExcludeEvaluatorID: evaluator.ID,
	})
	if err != nil {
		return 0, err
	}
	if equalRep <= 0 {
		return 0, nil
	}
	total, err := sess.totalReputation()
	if err != nil {
		return 0, err
	}

	equalRep += evaluator.Reputation
	share := evaluator.Reputation / equalRep
	burn := math.Pow(equalRep/total, s.policy.Alpha)
	factor := ct.DistributionStake * share * burn

	agreeing, err := sess.tx.ListEvaluations(sess.ctx, repository.EvaluationFilter{
		ContributionID:     c.ID,
		Value:              &value,
		ExcludeEvaluatorID: evaluator.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("list agreeing evaluations: %w", err)
	}

	voters := make([]*domain.User, 0, len(agreeing))
	snapshot := make([]float64, 0, len(agreeing))
	for _, prev := range agreeing {
		u, err := sess.user(prev.UserID)
		if err != nil {
			return 0, err
		}
		voters = append(voters, u)
		snapshot = append(snapshot, u.Reputation)
	}

	for i, u := range voters {
		delta := snapshot[i] * factor
		m := movement{
			kind:         domain.LedgerAgreementReward,
			contribution: c,
			evaluation:   e,
			meta:         map[string]interface{}{"evaluation_id": agreeing[i].ID},
		}
		sess.addReputation(u, delta, m)

		ref, err := sess.referrer(u)
		if err != nil {
			return 0, err
		}
		if ref != nil {
			sess.addReputation(ref, delta*s.policy.ReferralRewardFraction, movement{
				kind:         domain.LedgerReferralReward,
				contribution: c,
				evaluation:   e,
				meta:         map[string]interface{}{"referred_user_id": u.ID, "source": string(domain.LedgerAgreementReward)},
			})
		}
	}
	return len(voters), nil
}

// rewardContributor pays the contributor once the upvote ratio first crosses
// the reward threshold, and for every later increase of the high-water mark.
func (s *AccountingService) rewardContributor(sess *session, ct policy.ContributionType, c *domain.Contribution, e *domain.Evaluation) (float64, float64, error) {
	current, err := s.upvoteRatio(sess, c)
	if err != nil {
		return 0, 0, err
	}

	var base float64
	if current > c.MaxScore {
		if c.MaxScore >= ct.RewardThreshold {
			base = current - c.MaxScore
		} else if current > ct.RewardThreshold {
			base = current
		}
		sess.setMaxScore(c, current)
	}
	if base <= 0 {
		return 0, 0, nil
	}

	contributor, err := sess.user(c.UserID)
	if err != nil {
		return 0, 0, err
	}
	tokens := ct.TokenRewardFactor * base
	rep := ct.ReputationRewardFactor * base
	m := movement{
		kind:         domain.LedgerContributorReward,
		contribution: c,
		evaluation:   e,
		meta:         map[string]interface{}{"reward_base": base},
	}
	sess.addTokens(contributor, tokens, m)
	sess.addReputation(contributor, rep, m)

	ref, err := sess.referrer(contributor)
	if err != nil {
		return 0, 0, err
	}
	if ref != nil {
		rm := movement{
			kind:         domain.LedgerReferralReward,
			contribution: c,
			evaluation:   e,
			meta:         map[string]interface{}{"referred_user_id": contributor.ID, "source": string(domain.LedgerContributorReward)},
		}
		sess.addTokens(ref, tokens*s.policy.ReferralRewardFraction, rm)
		sess.addReputation(ref, rep*s.policy.ReferralRewardFraction, rm)
	}

	logger.WithContext(sess.ctx).Info("contributor rewarded",
		"contribution_id", c.ID,
		"contributor_id", contributor.ID,
		"reward_base", base,
		"tokens", tokens,
		"reputation", rep,
	)
	return tokens, rep, nil
}
