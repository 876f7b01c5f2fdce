package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"contracker/internal/apperr"
	"contracker/internal/scoring"
	"contracker/models"

	"github.com/jmoiron/sqlx"
)

// Contract (Контракт)

func (s *Storage) GetContract(ctx context.Context, id int) (*models.Contract, error) {
	c := &models.Contract{}
	query := `SELECT * FROM contracts WHERE id=$1`
	if err := s.db.GetContext(ctx, c, query, id); err != nil {
		return nil, notFoundOr(err, "contract not found")
	}
	if err := s.loadPlan(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Storage) GetContractorContracts(ctx context.Context, contractorID, limit, offset int) ([]models.Contract, error) {
	contracts := []models.Contract{}
	query := `
        SELECT * FROM contracts
        WHERE contractor_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	err := s.db.SelectContext(ctx, &contracts, query, contractorID, limit, offset)
	return contracts, err
}

func (s *Storage) loadPlan(ctx context.Context, c *models.Contract) error {
	c.ProposedMilestones = []models.ProposedMilestone{}
	err := s.db.SelectContext(ctx, &c.ProposedMilestones,
		`SELECT * FROM proposed_milestones WHERE contract_id=$1 ORDER BY position`, c.ID)
	if err != nil {
		return err
	}
	c.Milestones = []models.Milestone{}
	return s.db.SelectContext(ctx, &c.Milestones,
		`SELECT * FROM milestones WHERE contract_id=$1 ORDER BY position`, c.ID)
}

// SaveMilestoneProposal сохраняет новый набор черновых этапов и состояние
// переговоров. CAS по версии контракта: проигранная гонка — Conflict,
// вызывающий перечитывает и повторяет.
func (s *Storage) SaveMilestoneProposal(ctx context.Context, c *models.Contract, proposed []models.ProposedMilestone) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := casContractPlan(ctx, tx, c); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM proposed_milestones WHERE contract_id=$1`, c.ID)
	if err != nil {
		return err
	}
	for _, m := range proposed {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO proposed_milestones
                (contract_id, position, title, description, amount, due_date, grace_period_days)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, m.Position, m.Title, m.Description, m.Amount, m.DueDate, m.GracePeriodDays)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// FinalizeMilestonePlan превращает черновые этапы в финальный план.
// Набор этапов после этого неизменяем, мутирует только их состояние.
func (s *Storage) FinalizeMilestonePlan(ctx context.Context, c *models.Contract) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := casContractPlan(ctx, tx, c); err != nil {
		return err
	}

	proposed := []models.ProposedMilestone{}
	err = tx.SelectContext(ctx, &proposed,
		`SELECT * FROM proposed_milestones WHERE contract_id=$1 ORDER BY position`, c.ID)
	if err != nil {
		return err
	}
	if len(proposed) == 0 {
		return apperr.New(apperr.InvalidState, "no proposed milestones to finalize")
	}

	for _, m := range proposed {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO milestones
                (contract_id, position, title, description, amount, due_date, grace_period_days, status)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, m.Position, m.Title, m.Description, m.Amount, m.DueDate, m.GracePeriodDays,
			models.MilestonePending)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM proposed_milestones WHERE contract_id=$1`, c.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// casContractPlan записывает состояние переговоров контракта со сверкой
// версии. c.Version — версия, которую видел вызывающий.
func casContractPlan(ctx context.Context, tx *sqlx.Tx, c *models.Contract) error {
	res, err := tx.ExecContext(ctx, `
        UPDATE contracts
        SET milestone_plan_status=$1, proposal_reason=$2, negotiation_round=$3,
            version=version+1, updated_at=NOW()
        WHERE id=$4 AND version=$5`,
		c.PlanStatus, c.ProposalReason, c.NegotiationRound, c.ID, c.Version)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.Conflict, "contract was modified concurrently")
	}
	return nil
}

// Milestone (Этап)

// SubmitMilestone фиксирует сдачу этапа: доказательства, оценку
// автоматической проверки и окно публичного голосования. Срабатывает
// только из статуса Pending.
func (s *Storage) SubmitMilestone(ctx context.Context, milestoneID int, delayReason *string,
	aiScore int, aiRemarks string, proofs []models.Proof, now, votingClosesAt time.Time) error {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE milestones
        SET status=$1, submitted_at=$2, delay_reason=$3, ai_score=$4, ai_remarks=$5,
            voting_opens_at=$2, voting_closes_at=$6, voting_closed=false, updated_at=NOW()
        WHERE id=$7 AND status=$8`,
		models.MilestoneUnderReview, now, delayReason, aiScore, aiRemarks,
		votingClosesAt, milestoneID, models.MilestonePending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.InvalidState, "milestone is not awaiting submission")
	}

	for _, p := range proofs {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO milestone_proofs (milestone_id, file_url, proof_type, uploaded_by)
            VALUES ($1, $2, $3, $4)`,
			milestoneID, p.FileURL, p.ProofType, p.UploadedBy)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CastPublicVote записывает голос в журнал и счётчик. Один голос на
// пользователя — уникальный индекс; окно и статус проверяются в предикате
// обновления счётчика.
func (s *Storage) CastPublicVote(ctx context.Context, v *models.PublicVote, now time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO milestone_votes (milestone_id, voter_id, vote, comment)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`,
		v.MilestoneID, v.VoterID, v.Vote, v.Comment).
		Scan(&v.ID, &v.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "vote already cast for this milestone")
	}
	if err != nil {
		return err
	}

	column := "public_approve"
	if v.Vote == models.VoteReject {
		column = "public_reject"
	}
	res, err := tx.ExecContext(ctx, `
        UPDATE milestones
        SET `+column+` = `+column+` + 1, updated_at=NOW()
        WHERE id=$1 AND status=$2 AND voting_closed=false AND voting_closes_at > $3`,
		v.MilestoneID, models.MilestoneUnderReview, now)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.InvalidState, "public voting is not open for this milestone")
	}

	return tx.Commit()
}

func (s *Storage) GetMilestoneVotes(ctx context.Context, milestoneID int) ([]models.PublicVote, error) {
	votes := []models.PublicVote{}
	query := `SELECT * FROM milestone_votes WHERE milestone_id=$1 ORDER BY created_at`
	err := s.db.SelectContext(ctx, &votes, query, milestoneID)
	return votes, err
}

// CloseExpiredPublicVoting закрывает истёкшие окна голосования и
// переводит этапы в GovReview. Один предикатный UPDATE — идемпотентно.
func (s *Storage) CloseExpiredPublicVoting(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE milestones
        SET voting_closed=true, status=$1, updated_at=NOW()
        WHERE status=$2 AND voting_closed=false AND voting_closes_at <= $3`,
		models.MilestoneGovReview, models.MilestoneUnderReview, now)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	return int(rows), err
}

// FinalizeMilestone сохраняет итоговую оценку и вердикт. Срабатывает
// только из статуса GovReview.
func (s *Storage) FinalizeMilestone(ctx context.Context, milestoneID int, status models.MilestoneStatus,
	eval scoring.FinalEvaluation, overridden bool, overrideReason *string, now time.Time) error {

	res, err := s.db.ExecContext(ctx, `
        UPDATE milestones
        SET status=$1, final_ai_score=$2, final_public_score=$3, final_gov_score=$4,
            final_score=$5, recommended=$6, overridden=$7, override_reason=$8,
            calculated_at=$9, updated_at=NOW()
        WHERE id=$10 AND status=$11`,
		status, eval.AIScore, eval.PublicScore, eval.GovScore,
		eval.FinalScore, eval.Recommended, overridden, overrideReason,
		now, milestoneID, models.MilestoneGovReview)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.InvalidState, "milestone is not under government review")
	}
	return nil
}

// ReleaseMilestoneFunds выпускает оплату этапа. Строки контракта и этапа
// блокируются на время внешнего перевода: две параллельные выплаты не
// пройдут обе. Неудачный перевод откатывает транзакцию — этап остаётся
// Approved с released=false, повтор безопасен.
func (s *Storage) ReleaseMilestoneFunds(ctx context.Context, contractID, milestoneID int,
	transfer func(contractorID int, amount float64) (string, error)) error {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var c models.Contract
	err = tx.GetContext(ctx, &c, `SELECT * FROM contracts WHERE id=$1 FOR UPDATE`, contractID)
	if err != nil {
		return notFoundOr(err, "contract not found")
	}

	var m models.Milestone
	err = tx.GetContext(ctx, &m,
		`SELECT * FROM milestones WHERE id=$1 AND contract_id=$2 FOR UPDATE`, milestoneID, contractID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, "milestone not found")
	}
	if err != nil {
		return err
	}

	if c.PlanStatus != models.PlanFinalized {
		return apperr.New(apperr.InvalidState, "milestone plan is not finalized")
	}
	if m.Released {
		return apperr.New(apperr.Conflict, "funds already released for this milestone")
	}
	if m.Status != models.MilestoneApproved {
		return apperr.New(apperr.InvalidState, "milestone is not approved")
	}
	if c.PaidAmount+m.Amount > c.MaxPayableAmount {
		return apperr.New(apperr.LimitExceeded, "payment exceeds contract limit")
	}

	receiptRef, err := transfer(c.ContractorID, m.Amount)
	if err != nil {
		return apperr.New(apperr.Dependency, "fund transfer failed: "+err.Error())
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
        UPDATE milestones
        SET status=$1, released=true, released_at=$2, receipt_ref=$3, updated_at=NOW()
        WHERE id=$4`,
		models.MilestonePaid, now, receiptRef, milestoneID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE contracts SET paid_amount=paid_amount+$1, updated_at=NOW() WHERE id=$2`,
		m.Amount, contractID)
	if err != nil {
		return err
	}

	var unpaid int
	err = tx.GetContext(ctx, &unpaid,
		`SELECT COUNT(1) FROM milestones WHERE contract_id=$1 AND status <> $2`,
		contractID, models.MilestonePaid)
	if err != nil {
		return err
	}
	if unpaid == 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE contracts SET status=$1, updated_at=NOW() WHERE id=$2`,
			models.ContractCompleted, contractID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}
