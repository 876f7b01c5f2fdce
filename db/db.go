package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"contracker/internal/apperr"
	"contracker/internal/scoring"
	"contracker/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, message)
	}
	return err
}

// Contractor (Подрядчик)

func (s *Storage) GetContractor(ctx context.Context, id int) (*models.Contractor, error) {
	c := &models.Contractor{}
	query := `SELECT * FROM contractors WHERE id=$1`
	if err := s.db.GetContext(ctx, c, query, id); err != nil {
		return nil, notFoundOr(err, "contractor not found")
	}
	return c, nil
}

func (s *Storage) CreateContractor(ctx context.Context, c *models.Contractor) error {
	query := `
        INSERT INTO contractors (name, email, experience_years, rating, is_blocked)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		c.Name, c.Email, c.ExperienceYears, c.Rating, c.IsBlocked).
		Scan(&c.ID, &c.CreatedAt)
}

// RateContractor записывает оценку подрядчика и пересчитывает средний
// рейтинг. Повтор той же пары (контракт, оценивающий) — Conflict.
// Возвращает новое среднее.
func (s *Storage) RateContractor(ctx context.Context, r *models.ContractorRating) (float64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO contractor_ratings (contractor_id, contract_id, rater_id, rating, comment)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`,
		r.ContractorID, r.ContractID, r.RaterID, r.Rating, r.Comment).
		Scan(&r.ID, &r.CreatedAt)
	if isUniqueViolation(err) {
		return 0, apperr.New(apperr.Conflict, "contractor already rated for this contract")
	}
	if err != nil {
		return 0, err
	}

	var avg float64
	err = tx.GetContext(ctx, &avg, `
        SELECT ROUND(AVG(rating)::numeric, 2) FROM contractor_ratings WHERE contractor_id=$1`,
		r.ContractorID)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE contractors SET rating=$1 WHERE id=$2`, avg, r.ContractorID)
	if err != nil {
		return 0, err
	}

	return avg, tx.Commit()
}

// Tender (Тендер)

func (s *Storage) CreateTender(ctx context.Context, t *models.Tender) error {
	query := `
        INSERT INTO tenders
            (title, description, category, min_bid_amount, max_bid_amount,
             bid_opening_date, bid_closing_date, source, status, created_by, version)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
        RETURNING id, created_at, updated_at`
	return s.db.QueryRowContext(ctx, query,
		t.Title, t.Description, t.Category, t.MinBidAmount, t.MaxBidAmount,
		t.BidOpeningDate, t.BidClosingDate, t.Source, t.Status, t.CreatedBy).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (s *Storage) GetTender(ctx context.Context, id int) (*models.Tender, error) {
	t := &models.Tender{}
	query := `SELECT * FROM tenders WHERE id=$1`
	if err := s.db.GetContext(ctx, t, query, id); err != nil {
		return nil, notFoundOr(err, "tender not found")
	}
	return t, nil
}

func (s *Storage) GetTenders(ctx context.Context, statuses []models.TenderStatus, limit, offset int) ([]models.Tender, error) {
	baseQuery := `SELECT * FROM tenders`
	var args []interface{}
	filter := ""

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, st)
		}
		filter = fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
	}

	query := baseQuery + filter + " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	tenders := []models.Tender{}
	if err := s.db.SelectContext(ctx, &tenders, query, args...); err != nil {
		return nil, err
	}
	return tenders, nil
}

// UpdateTenderStatus переводит статус тендера по CAS на прежнем статусе.
// Нулевой результат означает проигранную гонку.
func (s *Storage) UpdateTenderStatus(ctx context.Context, id int, from, to models.TenderStatus) error {
	query := `
        UPDATE tenders
        SET status=$1, version=version+1, updated_at=NOW()
        WHERE id=$2 AND status=$3`
	res, err := s.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.Conflict, "tender status changed concurrently")
	}
	return nil
}

// Bid (Предложение)

func (s *Storage) CreateBid(ctx context.Context, b *models.Bid) error {
	query := `
        INSERT INTO bids
            (tender_id, contractor_id, bid_amount, proposal_document, timeline,
             remarks, experience_years, contractor_rating, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		b.TenderID, b.ContractorID, b.BidAmount, b.ProposalDocument, b.Timeline,
		b.Remarks, b.ExperienceYears, b.ContractorRating, b.Status).
		Scan(&b.ID, &b.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "bid already placed for this tender")
	}
	return err
}

func (s *Storage) GetBid(ctx context.Context, id int) (*models.Bid, error) {
	b := &models.Bid{}
	query := `SELECT * FROM bids WHERE id=$1`
	if err := s.db.GetContext(ctx, b, query, id); err != nil {
		return nil, notFoundOr(err, "bid not found")
	}
	return b, nil
}

func (s *Storage) GetBidsForTender(ctx context.Context, tenderID int) ([]models.Bid, error) {
	bids := []models.Bid{}
	query := `SELECT * FROM bids WHERE tender_id=$1 ORDER BY bid_amount ASC, id ASC`
	err := s.db.SelectContext(ctx, &bids, query, tenderID)
	return bids, err
}

// GetContractorBids отдаёт историю ставок подрядчика с контекстом тендера.
func (s *Storage) GetContractorBids(ctx context.Context, contractorID, limit, offset int) ([]models.ContractorBid, error) {
	bids := []models.ContractorBid{}
	query := `
        SELECT b.*, t.title AS tender_title, t.status AS tender_status
        FROM bids b
        JOIN tenders t ON t.id = b.tender_id
        WHERE b.contractor_id = $1
        ORDER BY b.created_at DESC
        LIMIT $2 OFFSET $3`
	err := s.db.SelectContext(ctx, &bids, query, contractorID, limit, offset)
	return bids, err
}

// EvaluateClosedTenders — идемпотентная развёртка: для каждого открытого
// тендера с истёкшим приёмом считает скоры Pending-предложений, помечает
// одно рекомендованным и закрывает приём. Повторный и параллельный вызовы
// безопасны: строка тендера блокируется, переход OPEN -> BIDDING_CLOSED
// срабатывает один раз.
func (s *Storage) EvaluateClosedTenders(ctx context.Context, now time.Time) (int, error) {
	var ids []int
	query := `SELECT id FROM tenders WHERE status=$1 AND bid_closing_date <= $2 ORDER BY id`
	if err := s.db.SelectContext(ctx, &ids, query, models.TenderOpen, now); err != nil {
		return 0, err
	}

	evaluated := 0
	for _, id := range ids {
		done, err := s.evaluateTender(ctx, id, now)
		if err != nil {
			return evaluated, err
		}
		if done {
			evaluated++
		}
	}
	return evaluated, nil
}

func (s *Storage) evaluateTender(ctx context.Context, tenderID int, now time.Time) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var t models.Tender
	err = tx.GetContext(ctx, &t, `SELECT * FROM tenders WHERE id=$1 AND status=$2 FOR UPDATE`,
		tenderID, models.TenderOpen)
	if errors.Is(err, sql.ErrNoRows) {
		// Параллельная развёртка уже обработала этот тендер
		return false, nil
	}
	if err != nil {
		return false, err
	}

	bids := []models.Bid{}
	err = tx.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE tender_id=$1 AND status=$2 ORDER BY id`,
		tenderID, models.BidPending)
	if err != nil {
		return false, err
	}

	if len(bids) > 0 {
		inputs := make([]scoring.BidInput, len(bids))
		for i, b := range bids {
			inputs[i] = scoring.BidInput{
				ID:              b.ID,
				Amount:          b.BidAmount,
				ExperienceYears: b.ExperienceYears,
				Rating:          b.ContractorRating,
			}
		}
		for _, r := range scoring.EvaluateBids(inputs) {
			_, err = tx.ExecContext(ctx,
				`UPDATE bids SET score=$1, system_recommended=$2, evaluated_at=$3 WHERE id=$4`,
				r.Score, r.Recommended, now, r.ID)
			if err != nil {
				return false, err
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tenders SET status=$1, version=version+1, updated_at=NOW() WHERE id=$2`,
		models.TenderBiddingClosed, tenderID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// AwardTender атомарно назначает победителя: отклоняет остальные
// предложения, создаёт контракт и переводит тендер в AWARDED. CAS на
// статусе тендера отсекает гонку двух награждений.
func (s *Storage) AwardTender(ctx context.Context, tenderID int, winning *models.Bid, c *models.Contract) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tenders SET status=$1, winner_id=$2, version=version+1, updated_at=NOW()
         WHERE id=$3 AND status=$4`,
		models.TenderAwarded, winning.ContractorID, tenderID, models.TenderBiddingClosed)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.New(apperr.InvalidState, "tender is not awaiting award")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status=$1 WHERE tender_id=$2`, models.BidRejected, tenderID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status=$1 WHERE id=$2`, models.BidAccepted, winning.ID)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO contracts
            (contract_uid, tender_id, contractor_id, contract_value, max_payable_amount,
             paid_amount, status, selection_type, manual_reason, awarded_by,
             milestone_plan_status, negotiation_round, version)
        VALUES
            ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, 0, 1)
        RETURNING id, awarded_at, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		c.ContractUID, c.TenderID, c.ContractorID, c.ContractValue, c.MaxPayableAmount,
		c.Status, c.SelectionType, c.ManualReason, c.AwardedBy, c.PlanStatus).
		Scan(&c.ID, &c.AwardedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}
