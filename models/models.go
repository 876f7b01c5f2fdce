package models

import "time"

// Статусы жизненных циклов
type (
	TenderStatus    string
	TenderSource    string
	BidStatus       string
	ContractStatus  string
	SelectionType   string
	PlanStatus      string
	MilestoneStatus string
	TemporalState   string
	VoteValue       string
)

const (
	TenderDraft         TenderStatus = "DRAFT"
	TenderOpen          TenderStatus = "OPEN"
	TenderBiddingClosed TenderStatus = "BIDDING_CLOSED"
	TenderAwarded       TenderStatus = "AWARDED"
	TenderCancelled     TenderStatus = "CANCELLED"

	SourceIssue  TenderSource = "ISSUE"
	SourceDirect TenderSource = "DIRECT"

	BidPending  BidStatus = "Pending"
	BidAccepted BidStatus = "Accepted"
	BidRejected BidStatus = "Rejected"

	ContractActive     ContractStatus = "Active"
	ContractSuspended  ContractStatus = "Suspended"
	ContractCompleted  ContractStatus = "Completed"
	ContractTerminated ContractStatus = "Terminated"

	SelectionSystem SelectionType = "SYSTEM"
	SelectionManual SelectionType = "MANUAL"

	PlanDraft              PlanStatus = "DRAFT"
	PlanContractorReview   PlanStatus = "CONTRACTOR_REVIEW"
	PlanContractorProposed PlanStatus = "CONTRACTOR_PROPOSED"
	PlanGovReview          PlanStatus = "GOV_REVIEW"
	PlanFinalized          PlanStatus = "FINALIZED"

	MilestonePending     MilestoneStatus = "Pending"
	MilestoneSubmitted   MilestoneStatus = "Submitted"
	MilestoneUnderReview MilestoneStatus = "UnderReview"
	MilestoneGovReview   MilestoneStatus = "GovReview"
	MilestoneApproved    MilestoneStatus = "Approved"
	MilestoneRejected    MilestoneStatus = "Rejected"
	MilestonePaid        MilestoneStatus = "Paid"

	Upcoming TemporalState = "Upcoming"
	Due      TemporalState = "Due"
	Overdue  TemporalState = "Overdue"

	VoteApprove VoteValue = "approve"
	VoteReject  VoteValue = "reject"
)

// Сущность Подрядчика
type Contractor struct {
	ID              int       `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Email           string    `db:"email" json:"email"`
	ExperienceYears int       `db:"experience_years" json:"experienceYears"`
	Rating          float64   `db:"rating" json:"rating"`
	IsBlocked       bool      `db:"is_blocked" json:"isBlocked"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Тендера
type Tender struct {
	ID             int          `db:"id" json:"id"`
	Title          string       `db:"title" json:"title"`
	Description    string       `db:"description" json:"description"`
	Category       string       `db:"category" json:"category"`
	MinBidAmount   float64      `db:"min_bid_amount" json:"minBidAmount"`
	MaxBidAmount   float64      `db:"max_bid_amount" json:"maxBidAmount"`
	BidOpeningDate time.Time    `db:"bid_opening_date" json:"bidOpeningDate"`
	BidClosingDate time.Time    `db:"bid_closing_date" json:"bidClosingDate"`
	Source         TenderSource `db:"source" json:"source"`
	Status         TenderStatus `db:"status" json:"status"`
	CreatedBy      int          `db:"created_by" json:"createdBy"`
	WinnerID       *int         `db:"winner_id" json:"winnerId,omitempty"`
	Version        int          `db:"version" json:"version"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"-"`
}

// Сущность Предложения. Уникально по паре (tender_id, contractor_id).
type Bid struct {
	ID                int        `db:"id" json:"id"`
	TenderID          int        `db:"tender_id" json:"tenderId"`
	ContractorID      int        `db:"contractor_id" json:"contractorId"`
	BidAmount         float64    `db:"bid_amount" json:"bidAmount"`
	ProposalDocument  string     `db:"proposal_document" json:"proposalDocument"`
	Timeline          string     `db:"timeline" json:"timeline"`
	Remarks           string     `db:"remarks" json:"remarks"`
	ExperienceYears   int        `db:"experience_years" json:"experienceYears"`
	ContractorRating  float64    `db:"contractor_rating" json:"contractorRating"`
	Score             *float64   `db:"score" json:"score"`
	SystemRecommended bool       `db:"system_recommended" json:"systemRecommended"`
	EvaluatedAt       *time.Time `db:"evaluated_at" json:"evaluatedAt,omitempty"`
	Status            BidStatus  `db:"status" json:"status"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// Сущность Контракта. Version — токен оптимистичной блокировки,
// проверяется при каждой мутации плана этапов.
type Contract struct {
	ID               int            `db:"id" json:"id"`
	ContractUID      string         `db:"contract_uid" json:"contractUid"`
	TenderID         int            `db:"tender_id" json:"tenderId"`
	ContractorID     int            `db:"contractor_id" json:"contractorId"`
	ContractValue    float64        `db:"contract_value" json:"contractValue"`
	MaxPayableAmount float64        `db:"max_payable_amount" json:"maxPayableAmount"`
	PaidAmount       float64        `db:"paid_amount" json:"paidAmount"`
	Status           ContractStatus `db:"status" json:"status"`
	SelectionType    SelectionType  `db:"selection_type" json:"selectionType"`
	ManualReason     *string        `db:"manual_reason" json:"manualReason,omitempty"`
	AwardedBy        int            `db:"awarded_by" json:"awardedBy"`
	AwardedAt        time.Time      `db:"awarded_at" json:"awardedAt"`
	PlanStatus       PlanStatus     `db:"milestone_plan_status" json:"milestonePlanStatus"`
	ProposalReason   *string        `db:"proposal_reason" json:"proposalReason,omitempty"`
	NegotiationRound int            `db:"negotiation_round" json:"negotiationRound"`
	Version          int            `db:"version" json:"version"`
	CreatedAt        time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time      `db:"updated_at" json:"-"`

	ProposedMilestones []ProposedMilestone `db:"-" json:"proposedMilestones,omitempty"`
	Milestones         []Milestone         `db:"-" json:"milestones,omitempty"`
}

// Черновик этапа, живёт только до финализации плана
type ProposedMilestone struct {
	ID              int       `db:"id" json:"id"`
	ContractID      int       `db:"contract_id" json:"-"`
	Position        int       `db:"position" json:"position"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Amount          float64   `db:"amount" json:"amount"`
	DueDate         time.Time `db:"due_date" json:"dueDate"`
	GracePeriodDays int       `db:"grace_period_days" json:"gracePeriodDays"`
}

// Сущность Этапа финализированного плана
type Milestone struct {
	ID              int             `db:"id" json:"id"`
	ContractID      int             `db:"contract_id" json:"-"`
	Position        int             `db:"position" json:"position"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description"`
	Amount          float64         `db:"amount" json:"amount"`
	DueDate         time.Time       `db:"due_date" json:"dueDate"`
	GracePeriodDays int             `db:"grace_period_days" json:"gracePeriodDays"`
	Status          MilestoneStatus `db:"status" json:"status"`
	DelayReason     *string         `db:"delay_reason" json:"delayReason,omitempty"`
	SubmittedAt     *time.Time      `db:"submitted_at" json:"submittedAt,omitempty"`

	AIScore   *int    `db:"ai_score" json:"aiScore,omitempty"`
	AIRemarks *string `db:"ai_remarks" json:"aiRemarks,omitempty"`

	PublicApprove  int        `db:"public_approve" json:"publicApprove"`
	PublicReject   int        `db:"public_reject" json:"publicReject"`
	VotingOpensAt  *time.Time `db:"voting_opens_at" json:"votingOpensAt,omitempty"`
	VotingClosesAt *time.Time `db:"voting_closes_at" json:"votingClosesAt,omitempty"`
	VotingClosed   bool       `db:"voting_closed" json:"votingClosed"`

	FinalAIScore     *int       `db:"final_ai_score" json:"finalAiScore,omitempty"`
	FinalPublicScore *int       `db:"final_public_score" json:"finalPublicScore,omitempty"`
	FinalGovScore    *int       `db:"final_gov_score" json:"finalGovScore,omitempty"`
	FinalScore       *int       `db:"final_score" json:"finalScore,omitempty"`
	Recommended      bool       `db:"recommended" json:"recommended"`
	Overridden       bool       `db:"overridden" json:"overridden"`
	OverrideReason   *string    `db:"override_reason" json:"overrideReason,omitempty"`
	CalculatedAt     *time.Time `db:"calculated_at" json:"calculatedAt,omitempty"`

	Released   bool       `db:"released" json:"released"`
	ReleasedAt *time.Time `db:"released_at" json:"releasedAt,omitempty"`
	ReceiptRef *string    `db:"receipt_ref" json:"receiptRef,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`

	// Вычисляется на чтении, не хранится
	Temporal TemporalState `db:"-" json:"temporalState,omitempty"`
}

// Запись голоса в журнале. Уникально по паре (milestone_id, voter_id).
type PublicVote struct {
	ID          int       `db:"id" json:"id"`
	MilestoneID int       `db:"milestone_id" json:"-"`
	VoterID     int       `db:"voter_id" json:"voterId"`
	Vote        VoteValue `db:"vote" json:"vote"`
	Comment     string    `db:"comment" json:"comment"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Оценка подрядчика по контракту. Уникально по паре (contract_id, rater_id);
// contractors.rating — среднее всех оценок, округлённое до 2 знаков.
type ContractorRating struct {
	ID           int       `db:"id" json:"id"`
	ContractorID int       `db:"contractor_id" json:"contractorId"`
	ContractID   int       `db:"contract_id" json:"contractId"`
	RaterID      int       `db:"rater_id" json:"raterId"`
	Rating       int       `db:"rating" json:"rating"`
	Comment      string    `db:"comment" json:"comment"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Ставка с контекстом тендера для истории подрядчика
type ContractorBid struct {
	Bid
	TenderTitle  string       `db:"tender_title" json:"tenderTitle"`
	TenderStatus TenderStatus `db:"tender_status" json:"tenderStatus"`
}

// Доказательство выполнения этапа
type Proof struct {
	ID          int       `db:"id" json:"id"`
	MilestoneID int       `db:"milestone_id" json:"-"`
	FileURL     string    `db:"file_url" json:"fileUrl"`
	ProofType   string    `db:"proof_type" json:"proofType"`
	UploadedBy  int       `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// GraceEnd возвращает конец льготного периода этапа.
func (m *Milestone) GraceEnd() time.Time {
	return m.DueDate.AddDate(0, 0, m.GracePeriodDays)
}

// MilestoneTemporalState вычисляет производное временное состояние этапа
// по dueDate и льготному периоду. Единая точка для всех проверок сроков.
func MilestoneTemporalState(now, dueDate time.Time, gracePeriodDays int) TemporalState {
	if now.Before(dueDate) {
		return Upcoming
	}
	if now.After(dueDate.AddDate(0, 0, gracePeriodDays)) {
		return Overdue
	}
	return Due
}
