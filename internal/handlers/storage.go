package handlers

import (
	"context"
	"time"

	"contracker/internal/scoring"
	"contracker/models"
)

type StorageInterface interface {
	GetContractor(ctx context.Context, id int) (*models.Contractor, error)
	CreateContractor(ctx context.Context, c *models.Contractor) error
	RateContractor(ctx context.Context, r *models.ContractorRating) (float64, error)
	GetContractorBids(ctx context.Context, contractorID, limit, offset int) ([]models.ContractorBid, error)

	CreateTender(ctx context.Context, t *models.Tender) error
	GetTender(ctx context.Context, id int) (*models.Tender, error)
	GetTenders(ctx context.Context, statuses []models.TenderStatus, limit, offset int) ([]models.Tender, error)
	UpdateTenderStatus(ctx context.Context, id int, from, to models.TenderStatus) error

	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id int) (*models.Bid, error)
	GetBidsForTender(ctx context.Context, tenderID int) ([]models.Bid, error)

	EvaluateClosedTenders(ctx context.Context, now time.Time) (int, error)
	AwardTender(ctx context.Context, tenderID int, winning *models.Bid, c *models.Contract) error

	GetContract(ctx context.Context, id int) (*models.Contract, error)
	GetContractorContracts(ctx context.Context, contractorID, limit, offset int) ([]models.Contract, error)
	SaveMilestoneProposal(ctx context.Context, c *models.Contract, proposed []models.ProposedMilestone) error
	FinalizeMilestonePlan(ctx context.Context, c *models.Contract) error

	SubmitMilestone(ctx context.Context, milestoneID int, delayReason *string,
		aiScore int, aiRemarks string, proofs []models.Proof, now, votingClosesAt time.Time) error
	CastPublicVote(ctx context.Context, v *models.PublicVote, now time.Time) error
	GetMilestoneVotes(ctx context.Context, milestoneID int) ([]models.PublicVote, error)
	CloseExpiredPublicVoting(ctx context.Context, now time.Time) (int, error)
	FinalizeMilestone(ctx context.Context, milestoneID int, status models.MilestoneStatus,
		eval scoring.FinalEvaluation, overridden bool, overrideReason *string, now time.Time) error
	ReleaseMilestoneFunds(ctx context.Context, contractID, milestoneID int,
		transfer func(contractorID int, amount float64) (string, error)) error
}
