// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"chai-builder-go/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(user *model.User) error
	FindByID(userID uint) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	FindByGoogleID(googleID string) (*model.User, error)
	Update(user *model.User) error
	Delete(userID uint) error
	// ChargeTokens 对余额做条件扣减。余额不足时不修改任何数据并返回 false。
	ChargeTokens(userID uint, cost int) (bool, error)
	// GrantTokens 给用户增加 token 余额。
	GrantTokens(userID uint, amount int) error
	// RecordLogin 落盘登录时间，发放过 token 时同时落盘发放日期。
	RecordLogin(userID uint, loginAt time.Time, grantAt *time.Time) error
	// UpdateProjects 只更新用户的项目投影列表，不触碰其他列。
	UpdateProjects(userID uint, projects datatypes.JSON) error
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByID 根据用户 ID 从数据库中查找一个用户。
func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	err := r.db.First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱从数据库中查找一个用户。
func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByGoogleID 根据 Google 账号 ID 从数据库中查找一个用户。
func (r *userRepository) FindByGoogleID(googleID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("google_id = ?", googleID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 更新数据库中一个已存在的用户记录。
func (r *userRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

// Delete 删除一个用户记录。
func (r *userRepository) Delete(userID uint) error {
	return r.db.Delete(&model.User{}, userID).Error
}

// ChargeTokens 以单条条件 UPDATE 扣减余额，避免读-改-写竞态导致的超扣。
// 两个并发请求最多只有一个能在余额临界时扣减成功。
func (r *userRepository) ChargeTokens(userID uint, cost int) (bool, error) {
	res := r.db.Model(&model.User{}).
		Where("id = ? AND tokens >= ?", userID, cost).
		UpdateColumn("tokens", gorm.Expr("tokens - ?", cost))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GrantTokens 以单条 UPDATE 增加余额。
func (r *userRepository) GrantTokens(userID uint, amount int) error {
	return r.db.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("tokens", gorm.Expr("tokens + ?", amount)).Error
}

// RecordLogin 只更新登录时间与发放日期两列。登录路径不整行 Save，
// 避免用内存里的旧余额覆盖并发扣减或发放的结果。
func (r *userRepository) RecordLogin(userID uint, loginAt time.Time, grantAt *time.Time) error {
	updates := map[string]interface{}{"last_login": loginAt}
	if grantAt != nil {
		updates["last_token_grant_date"] = *grantAt
	}
	return r.db.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumns(updates).Error
}

// UpdateProjects 只更新项目投影列。余额由条件扣减维护，
// 这里不能整行 Save，否则会用内存里的旧余额覆盖掉扣减结果。
func (r *userRepository) UpdateProjects(userID uint, projects datatypes.JSON) error {
	return r.db.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("projects", projects).Error
}
