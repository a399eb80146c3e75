package repository

import (
	"context"

	"vahtook/models"
)

// AdminRepositoryI defines operations on Admin entities.
type AdminRepositoryI interface {
	Create(ctx context.Context, a *models.Admin) (*models.Admin, error)
	GetByID(ctx context.Context, id int64) (*models.Admin, error)
	GetByLogin(ctx context.Context, login string) (*models.Admin, error)
	List(ctx context.Context, limit, offset int) ([]models.Admin, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// OrderRepositoryI defines operations on Order entities and their status history.
type OrderRepositoryI interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, number string) (*models.Order, error)
	ApplyStatusChange(ctx context.Context, c StatusChange) (models.OrderStatus, error)
	Update(ctx context.Context, id int64, u OrderUpdate) error
	StatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistory, error)
	Recent(ctx context.Context, limit int) ([]models.Order, error)
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
	ListAdmin(ctx context.Context, p ListOrdersAdminParams) ([]models.Order, Pagination, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
}

var (
	_ AdminRepositoryI = (*AdminRepository)(nil)
	_ OrderRepositoryI = (*OrderRepository)(nil)
)
