package repository

import (
	"context"
	"errors"
	"time"

	"songforge/model"

	"gorm.io/gorm"
)

// SongRepository 歌曲数据访问接口
type SongRepository interface {
	Create(ctx context.Context, song *model.Song) error
	GetByID(ctx context.Context, id string) (*model.Song, error)
	// FindPlayable returns the song only if it has an audio key and userID owns it or it is published.
	FindPlayable(ctx context.Context, id, userID string) (*model.Song, error)
	IncrementListenCount(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*model.Song, error)
	ListPublished(ctx context.Context, limit, offset int) ([]*model.Song, error)
	ListStaleQueued(ctx context.Context, before time.Time, limit int) ([]*model.Song, error)
	// UpdateTitle and SetPublished only touch rows owned by userID and report whether one matched.
	UpdateTitle(ctx context.Context, id, userID, title string) (bool, error)
	SetPublished(ctx context.Context, id, userID string, published bool) (bool, error)
	MarkFailed(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// gormSongRepository GORM 实现
type gormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository 创建 GORM 歌曲仓库
func NewGormSongRepository(db *gorm.DB) SongRepository {
	return &gormSongRepository{db: db}
}

func (r *gormSongRepository) Create(ctx context.Context, song *model.Song) error {
	return r.db.WithContext(ctx).Create(song).Error
}

func (r *gormSongRepository) GetByID(ctx context.Context, id string) (*model.Song, error) {
	var song model.Song
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &song, nil
}

func (r *gormSongRepository) FindPlayable(ctx context.Context, id, userID string) (*model.Song, error) {
	var song model.Song
	err := r.db.WithContext(ctx).
		Where("id = ? AND audio_key IS NOT NULL AND (user_id = ? OR published = ?)", id, userID, true).
		First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &song, nil
}

// IncrementListenCount is a single UPDATE so concurrent plays never lose a count.
func (r *gormSongRepository) IncrementListenCount(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ?", id).
		UpdateColumn("listen_count", gorm.Expr("listen_count + ?", 1)).Error
}

func (r *gormSongRepository) ListByUser(ctx context.Context, userID string) ([]*model.Song, error) {
	var songs []*model.Song
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&songs).Error
	return songs, err
}

func (r *gormSongRepository) ListPublished(ctx context.Context, limit, offset int) ([]*model.Song, error) {
	var songs []*model.Song
	err := r.db.WithContext(ctx).
		Where("published = ? AND status = ? AND audio_key IS NOT NULL", true, model.SongStatusReady).
		Order("listen_count DESC").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&songs).Error
	return songs, err
}

func (r *gormSongRepository) ListStaleQueued(ctx context.Context, before time.Time, limit int) ([]*model.Song, error) {
	var songs []*model.Song
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.SongStatusQueued, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&songs).Error
	return songs, err
}

func (r *gormSongRepository) UpdateTitle(ctx context.Context, id, userID, title string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("title", title)
	return res.RowsAffected > 0, res.Error
}

func (r *gormSongRepository) SetPublished(ctx context.Context, id, userID string, published bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("published", published)
	return res.RowsAffected > 0, res.Error
}

// MarkFailed only moves a still-queued song, it never overwrites a worker-written status.
func (r *gormSongRepository) MarkFailed(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ? AND status = ?", id, model.SongStatusQueued).
		Update("status", model.SongStatusFailed).Error
}

func (r *gormSongRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Song{}).Error
}
