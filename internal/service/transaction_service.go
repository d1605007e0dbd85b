package service

import (
	"context"
	"errors"
	"time"

	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

// pointsPerDollar: four points per dollar, i.e. one point per $0.25 spent.
var pointsPerDollar = decimal.NewFromInt(4)

// DTOs for Request validation
type PurchaseRequest struct {
	Utorid       string          `json:"utorid" binding:"required"`
	Spent        decimal.Decimal `json:"spent"`
	PromotionIDs []string        `json:"promotionIds"`
	Remark       string          `json:"remark"`
}

type AdjustmentRequest struct {
	Utorid    string `json:"utorid" binding:"required"`
	Amount    int    `json:"amount" binding:"required"`
	RelatedID string `json:"relatedId" binding:"required"`
	Remark    string `json:"remark"`
}

type RedemptionRequest struct {
	Amount int    `json:"amount" binding:"required"`
	Remark string `json:"remark"`
}

type TransferRequest struct {
	Amount int    `json:"amount" binding:"required"`
	Remark string `json:"remark"`
}

// TransactionResponse is the wire shape of a ledger row. Type-specific fields
// are omitted when empty.
type TransactionResponse struct {
	ID            uuid.UUID   `json:"id"`
	Utorid        string      `json:"utorid"`
	Type          string      `json:"type"`
	Amount        int         `json:"amount"`
	Spent         *float64    `json:"spent,omitempty"`
	Earned        *int        `json:"earned,omitempty"`
	Redeemed      *int        `json:"redeemed,omitempty"`
	Processed     *bool       `json:"processed,omitempty"`
	ProcessedBy   *string     `json:"processedBy,omitempty"`
	RelatedUserID *uuid.UUID  `json:"relatedUserId,omitempty"`
	RelatedID     *uuid.UUID  `json:"relatedId,omitempty"`
	EventID       *uuid.UUID  `json:"eventId,omitempty"`
	PromotionIDs  []uuid.UUID `json:"promotionIds"`
	Suspicious    bool        `json:"suspicious"`
	Remark        string      `json:"remark"`
	CreatedBy     string      `json:"createdBy"`
	CreatedAt     string      `json:"createdAt"`
}

// TransactionService owns the points ledger: every balance mutation flows
// through one of its operations inside a single database transaction.
type TransactionService interface {
	CreatePurchase(ctx context.Context, creatorID string, req PurchaseRequest) (*TransactionResponse, error)
	CreateAdjustment(ctx context.Context, creatorID string, req AdjustmentRequest) (*TransactionResponse, error)
	CreateRedemption(ctx context.Context, ownerID string, req RedemptionRequest) (*TransactionResponse, error)
	ProcessRedemption(ctx context.Context, processorID, txID string) (*TransactionResponse, error)
	CreateTransfer(ctx context.Context, senderID, recipientID string, req TransferRequest) (*TransactionResponse, error)
	SetSuspicious(ctx context.Context, txID string, suspicious bool) (*TransactionResponse, error)
	Get(ctx context.Context, txID string) (*TransactionResponse, error)
	List(ctx context.Context, filter repository.TransactionFilter, offset, limit int) ([]TransactionResponse, int64, error)
	// RedemptionQR renders the QR code a cashier scans to process the
	// caller's redemption request.
	RedemptionQR(ctx context.Context, ownerID, txID string) ([]byte, error)
}

type transactionService struct {
	txRepo    repository.TransactionRepository
	userRepo  repository.UserRepository
	promoRepo repository.PromotionRepository
	txManager repository.TransactionManager
}

// NewTransactionService returns a new instance of TransactionService
func NewTransactionService(
	txRepo repository.TransactionRepository,
	userRepo repository.UserRepository,
	promoRepo repository.PromotionRepository,
	txManager repository.TransactionManager,
) TransactionService {
	return &transactionService{
		txRepo:    txRepo,
		userRepo:  userRepo,
		promoRepo: promoRepo,
		txManager: txManager,
	}
}

func (s *transactionService) CreatePurchase(ctx context.Context, creatorID string, req PurchaseRequest) (*TransactionResponse, error) {
	if req.Spent.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.BadRequest("Spent must be a positive amount")
	}

	creator, err := s.userRepo.GetByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUtorid(ctx, req.Utorid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	// Validate every promotion up front; any failure rejects the whole
	// request before a single row is written.
	now := time.Now()
	promos := make([]*model.Promotion, 0, len(req.PromotionIDs))
	seen := make(map[string]bool, len(req.PromotionIDs))
	for _, pid := range req.PromotionIDs {
		if seen[pid] {
			return nil, apperr.BadRequest("Duplicate promotion id")
		}
		seen[pid] = true

		promo, err := s.promoRepo.GetByID(ctx, pid)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.BadRequest("Invalid promotion id")
			}
			return nil, err
		}
		if !promo.Published || !promo.ActiveAt(now) {
			return nil, apperr.BadRequest("Promotion is not active")
		}
		if promo.MinSpending != nil && req.Spent.LessThan(*promo.MinSpending) {
			return nil, apperr.BadRequest("Purchase does not meet the promotion's minimum spending")
		}
		if promo.Type == model.PromotionOnetime {
			used, err := s.txRepo.HasPromotionUsage(ctx, user.ID.String(), pid)
			if err != nil {
				return nil, err
			}
			if used {
				return nil, apperr.BadRequest("Promotion already used")
			}
		}
		promos = append(promos, promo)
	}

	earned := purchasePoints(req.Spent, promos)

	tx := &model.Transaction{
		Type:        model.TxPurchase,
		Amount:      earned,
		UserID:      user.ID,
		CreatedByID: creator.ID,
		Spent:       &req.Spent,
		Suspicious:  creator.Suspicious,
		Remark:      req.Remark,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.Create(txCtx, tx); err != nil {
			return err
		}
		for _, promo := range promos {
			if promo.Type != model.PromotionOnetime {
				continue
			}
			usedAt := now
			usage := &model.PromotionUsage{
				UserID:        user.ID,
				PromotionID:   promo.ID,
				TransactionID: &tx.ID,
				UsedAt:        &usedAt,
			}
			if err := s.txRepo.CreatePromotionUsage(txCtx, usage); err != nil {
				return err
			}
		}
		// Points from a suspicious cashier are withheld pending review.
		if !creator.Suspicious {
			return s.userRepo.CreditPoints(txCtx, user.ID.String(), earned)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := toTransactionResponse(tx, user, creator)
	reported := earned
	if creator.Suspicious {
		reported = 0
	}
	res.Earned = &reported
	res.PromotionIDs = promotionIDs(promos)
	return res, nil
}

func (s *transactionService) CreateAdjustment(ctx context.Context, creatorID string, req AdjustmentRequest) (*TransactionResponse, error) {
	creator, err := s.userRepo.GetByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUtorid(ctx, req.Utorid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	related, err := s.txRepo.GetByID(ctx, req.RelatedID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Related transaction not found")
		}
		return nil, err
	}

	tx := &model.Transaction{
		Type:                 model.TxAdjustment,
		Amount:               req.Amount,
		UserID:               user.ID,
		CreatedByID:          creator.ID,
		RelatedTransactionID: &related.ID,
		Remark:               req.Remark,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.txRepo.Create(txCtx, tx); err != nil {
			return err
		}
		return s.applyDelta(txCtx, user.ID.String(), req.Amount)
	})
	if err != nil {
		return nil, err
	}

	return toTransactionResponse(tx, user, creator), nil
}

func (s *transactionService) CreateRedemption(ctx context.Context, ownerID string, req RedemptionRequest) (*TransactionResponse, error) {
	if req.Amount <= 0 {
		return nil, apperr.BadRequest("Amount must be a positive integer")
	}

	owner, err := s.userRepo.GetByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.Points < req.Amount {
		return nil, apperr.BadRequest("Insufficient points")
	}

	redeemed := req.Amount
	tx := &model.Transaction{
		Type:        model.TxRedemption,
		Amount:      -req.Amount,
		UserID:      owner.ID,
		CreatedByID: owner.ID,
		Redeemed:    &redeemed,
		Processed:   false,
		Remark:      req.Remark,
	}

	// Balance is only debited at processing time; the request itself writes
	// just the ledger row.
	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	return toTransactionResponse(tx, owner, owner), nil
}

func (s *transactionService) ProcessRedemption(ctx context.Context, processorID, txID string) (*TransactionResponse, error) {
	processor, err := s.userRepo.GetByID(ctx, processorID)
	if err != nil {
		return nil, err
	}

	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, err
	}

	if tx.Type != model.TxRedemption {
		return nil, apperr.BadRequest("Transaction is not a redemption")
	}
	if tx.Processed {
		return nil, apperr.BadRequest("Redemption has already been processed")
	}

	// The processed transition is claimed with a conditional UPDATE inside
	// the transaction; the check above only gives the common case a friendly
	// error without a write.
	now := time.Now()
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		claimed, err := s.txRepo.MarkProcessed(txCtx, tx.ID.String(), processor.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return apperr.BadRequest("Redemption has already been processed")
		}
		ok, err := s.userRepo.DebitPoints(txCtx, tx.UserID.String(), *tx.Redeemed)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("Insufficient points")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tx.Processed = true
	tx.ProcessedByID = &processor.ID
	tx.ProcessedAt = &now

	res := toTransactionResponse(tx, tx.User, tx.CreatedBy)
	processed := true
	res.Processed = &processed
	res.ProcessedBy = &processor.Utorid
	return res, nil
}

func (s *transactionService) CreateTransfer(ctx context.Context, senderID, recipientID string, req TransferRequest) (*TransactionResponse, error) {
	if req.Amount <= 0 {
		return nil, apperr.BadRequest("Amount must be a positive integer")
	}

	sender, err := s.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if !sender.Verified {
		return nil, apperr.Forbidden("Account must be verified to transfer points")
	}

	recipient, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Recipient not found")
		}
		return nil, err
	}
	if sender.ID == recipient.ID {
		return nil, apperr.BadRequest("Cannot transfer points to yourself")
	}
	if sender.Points < req.Amount {
		return nil, apperr.BadRequest("Insufficient points")
	}

	out := &model.Transaction{
		Type:          model.TxTransfer,
		Amount:        -req.Amount,
		UserID:        sender.ID,
		CreatedByID:   sender.ID,
		RelatedUserID: &recipient.ID,
		Remark:        req.Remark,
	}
	in := &model.Transaction{
		Type:          model.TxTransfer,
		Amount:        req.Amount,
		UserID:        recipient.ID,
		CreatedByID:   sender.ID,
		RelatedUserID: &sender.ID,
		Remark:        req.Remark,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := s.userRepo.DebitPoints(txCtx, sender.ID.String(), req.Amount)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest("Insufficient points")
		}
		if err := s.userRepo.CreditPoints(txCtx, recipient.ID.String(), req.Amount); err != nil {
			return err
		}
		if err := s.txRepo.Create(txCtx, out); err != nil {
			return err
		}
		return s.txRepo.Create(txCtx, in)
	})
	if err != nil {
		return nil, err
	}

	return toTransactionResponse(out, sender, sender), nil
}

func (s *transactionService) SetSuspicious(ctx context.Context, txID string, suspicious bool) (*TransactionResponse, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, err
	}

	// Idempotent: re-asserting the current flag must not double-apply the
	// balance delta.
	if tx.Suspicious == suspicious {
		return toTransactionResponse(tx, tx.User, tx.CreatedBy), nil
	}

	delta := tx.Amount
	if suspicious {
		delta = -delta
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.applyDelta(txCtx, tx.UserID.String(), delta); err != nil {
			return err
		}
		tx.Suspicious = suspicious
		return s.txRepo.Save(txCtx, tx)
	})
	if err != nil {
		return nil, err
	}

	return toTransactionResponse(tx, tx.User, tx.CreatedBy), nil
}

func (s *transactionService) Get(ctx context.Context, txID string) (*TransactionResponse, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, err
	}

	res := toTransactionResponse(tx, tx.User, tx.CreatedBy)
	ids, err := s.txRepo.PromotionIDsForTransactions(ctx, []uuid.UUID{tx.ID})
	if err != nil {
		return nil, err
	}
	if promoIDs, ok := ids[tx.ID]; ok {
		res.PromotionIDs = promoIDs
	}
	return res, nil
}

func (s *transactionService) List(ctx context.Context, filter repository.TransactionFilter, offset, limit int) ([]TransactionResponse, int64, error) {
	txs, total, err := s.txRepo.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	txIDs := make([]uuid.UUID, 0, len(txs))
	for i := range txs {
		txIDs = append(txIDs, txs[i].ID)
	}
	promoIDs, err := s.txRepo.PromotionIDsForTransactions(ctx, txIDs)
	if err != nil {
		return nil, 0, err
	}

	res := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		entry := toTransactionResponse(&txs[i], txs[i].User, txs[i].CreatedBy)
		if ids, ok := promoIDs[txs[i].ID]; ok {
			entry.PromotionIDs = ids
		}
		res = append(res, *entry)
	}
	return res, total, nil
}

func (s *transactionService) RedemptionQR(ctx context.Context, ownerID, txID string) ([]byte, error) {
	tx, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Transaction not found")
		}
		return nil, err
	}
	if tx.UserID.String() != ownerID {
		return nil, apperr.NotFound("Transaction not found")
	}
	if tx.Type != model.TxRedemption {
		return nil, apperr.BadRequest("Transaction is not a redemption")
	}

	return qrcode.Encode("redemption:"+tx.ID.String(), qrcode.Medium, 256)
}

// applyDelta credits or conditionally debits a balance. Negative deltas fail
// with a 400 when the balance cannot cover them.
func (s *transactionService) applyDelta(ctx context.Context, userID string, delta int) error {
	if delta >= 0 {
		return s.userRepo.CreditPoints(ctx, userID, delta)
	}
	ok, err := s.userRepo.DebitPoints(ctx, userID, -delta)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.BadRequest("Insufficient points")
	}
	return nil
}

// purchasePoints computes earned points: one per $0.25 spent, plus each
// promotion's rate bonus or flat points.
func purchasePoints(spent decimal.Decimal, promos []*model.Promotion) int {
	earned := spent.Mul(pointsPerDollar).Round(0).IntPart()
	for _, promo := range promos {
		if promo.Rate != nil {
			bonus := spent.Mul(decimal.NewFromFloat(*promo.Rate)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
			earned += bonus
		}
		if promo.Points != nil {
			earned += int64(*promo.Points)
		}
	}
	return int(earned)
}

func promotionIDs(promos []*model.Promotion) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(promos))
	for _, p := range promos {
		ids = append(ids, p.ID)
	}
	return ids
}

func toTransactionResponse(tx *model.Transaction, user, creator *model.User) *TransactionResponse {
	res := &TransactionResponse{
		ID:            tx.ID,
		Type:          tx.Type,
		Amount:        tx.Amount,
		Redeemed:      tx.Redeemed,
		RelatedUserID: tx.RelatedUserID,
		RelatedID:     tx.RelatedTransactionID,
		EventID:       tx.EventID,
		PromotionIDs:  []uuid.UUID{},
		Suspicious:    tx.Suspicious,
		Remark:        tx.Remark,
		CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.Spent != nil {
		spent, _ := tx.Spent.Float64()
		res.Spent = &spent
	}
	if tx.Type == model.TxRedemption {
		processed := tx.Processed
		res.Processed = &processed
		if tx.ProcessedBy != nil {
			res.ProcessedBy = &tx.ProcessedBy.Utorid
		}
	}
	if user != nil {
		res.Utorid = user.Utorid
	}
	if creator != nil {
		res.CreatedBy = creator.Utorid
	}
	return res
}
