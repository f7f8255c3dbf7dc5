package mysql

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/wyfcoding/zksession/internal/session/domain"
	"github.com/wyfcoding/zksession/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建并返回一个新的 SessionRepository 实例。
func NewSessionRepository(db *gorm.DB) domain.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *sessionRepository) Get(ctx context.Context, user string) (*domain.Session, error) {
	var model SessionModel
	err := r.getDB(ctx).WithContext(ctx).Where("user = ?", user).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toSession(&model), nil
}

// Mutate 在事务内对 user 所在行加排他锁后执行 fn，
// 同一地址的 check-then-update 在数据库层面串行化。
// fn 的 ctx 绑定事务句柄，fn 内的 outbox 写入与会话行一起提交。
// 无行可锁时两个并发建会话会竞争 Create，落败方的唯一键冲突
// 翻译成 ErrSessionAlreadyExists。
func (r *sessionRepository) Mutate(ctx context.Context, user string, fn func(ctx context.Context, current *domain.Session) (*domain.Session, error)) (*domain.Session, error) {
	var result *domain.Session

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SessionModel
		var current *domain.Session

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user = ?", user).
			First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = nil
		case err != nil:
			return err
		default:
			current = toSession(&model)
		}

		next, err := fn(contextx.WithTx(ctx, tx), current)
		if err != nil {
			return err
		}

		nextModel := toSessionModel(next)
		if nextModel.ID == 0 {
			if err := tx.Create(nextModel).Error; err != nil {
				if isDuplicateKey(err) {
					return domain.ErrSessionAlreadyExists
				}
				return err
			}
			next.ID = nextModel.ID
		} else if err := tx.Save(nextModel).Error; err != nil {
			return err
		}

		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sessionRepository) CountValid(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("is_active = ? AND expiry > ?", true, time.Now()).
		Count(&count).Error
	return count, err
}

type traderRepository struct {
	db *gorm.DB
}

// NewTraderRepository 创建并返回一个新的 TraderRepository 实例。
func NewTraderRepository(db *gorm.DB) domain.TraderRepository {
	return &traderRepository{db: db}
}

func (r *traderRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *traderRepository) Add(ctx context.Context, trader string) error {
	model := &AuthorizedTraderModel{Trader: trader}
	// 重复授权幂等
	return r.getDB(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
}

func (r *traderRepository) Remove(ctx context.Context, trader string) error {
	return r.getDB(ctx).WithContext(ctx).
		Where("trader = ?", trader).
		Delete(&AuthorizedTraderModel{}).Error
}

func (r *traderRepository) IsAuthorized(ctx context.Context, trader string) (bool, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&AuthorizedTraderModel{}).
		Where("trader = ?", trader).
		Count(&count).Error
	return count > 0, err
}

func (r *traderRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&AuthorizedTraderModel{}).Count(&count).Error
	return count, err
}

func (r *traderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
