package db

import (
	"encoding/json"
	"time"
)

// Source maps news.sources.
type Source struct {
	SourceID       int64     `gorm:"column:source_id;primaryKey;autoIncrement"`
	SourceUUID     string    `gorm:"column:source_uuid;type:uuid;not null;unique"`
	Name           string    `gorm:"column:name;type:text;not null"`
	HomeURL        string    `gorm:"column:home_url;type:text;not null;unique"`
	RSSURL         *string   `gorm:"column:rss_url;type:text"`
	BiasLabel      string    `gorm:"column:bias_label;type:text;not null;default:Center"`
	AuthorityScore float64   `gorm:"column:authority_score;type:double precision;not null;default:0.5"`
	Country        string    `gorm:"column:country;type:text;not null;default:US"`
	Language       string    `gorm:"column:language;type:text;not null;default:en"`
	Active         bool      `gorm:"column:active;type:boolean;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "news.sources" }

// Article maps news.articles. Fingerprint is the dedup key.
type Article struct {
	ArticleID   int64     `gorm:"column:article_id;primaryKey;autoIncrement"`
	ArticleUUID string    `gorm:"column:article_uuid;type:uuid;not null;unique"`
	SourceID    int64     `gorm:"column:source_id;type:bigint;not null;index"`
	URL         string    `gorm:"column:url;type:text;not null"`
	Title       string    `gorm:"column:title;type:text;not null"`
	Summary     string    `gorm:"column:summary;type:text;not null;default:''"`
	Excerpt     string    `gorm:"column:excerpt;type:text;not null;default:''"`
	PublishedAt time.Time `gorm:"column:published_at;type:timestamptz;not null"`
	Fingerprint string    `gorm:"column:fingerprint;type:text;not null;unique"`
	Lang        string    `gorm:"column:lang;type:text;not null;default:en"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "news.articles" }

// BiasScore maps news.bias_scores; one row per article.
type BiasScore struct {
	ArticleID   int64     `gorm:"column:article_id;type:bigint;primaryKey"`
	Leaning     string    `gorm:"column:leaning;type:text;not null"`
	Score       int       `gorm:"column:score;type:smallint;not null"`
	Confidence  int       `gorm:"column:confidence;type:smallint;not null"`
	Explanation string    `gorm:"column:explanation;type:text;not null;default:''"`
	Model       string    `gorm:"column:model;type:text;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (BiasScore) TableName() string { return "news.bias_scores" }

// Topic maps news.topics. ClusterFingerprint is the dedup key.
type Topic struct {
	TopicID            int64           `gorm:"column:topic_id;primaryKey;autoIncrement"`
	TopicUUID          string          `gorm:"column:topic_uuid;type:uuid;not null;unique"`
	Title              string          `gorm:"column:title;type:text;not null"`
	Description        string          `gorm:"column:description;type:text;not null;default:''"`
	Keywords           json.RawMessage `gorm:"column:keywords;type:jsonb;not null;default:'[]'"`
	ClusterFingerprint string          `gorm:"column:cluster_fingerprint;type:text;not null;unique"`
	FirstSeenAt        time.Time       `gorm:"column:first_seen_at;type:timestamptz;not null"`
	LastSeenAt         time.Time       `gorm:"column:last_seen_at;type:timestamptz;not null;index"`
}

func (Topic) TableName() string { return "news.topics" }

// TopicMember maps news.topic_members.
type TopicMember struct {
	TopicID   int64     `gorm:"column:topic_id;type:bigint;primaryKey"`
	ArticleID int64     `gorm:"column:article_id;type:bigint;primaryKey;index"`
	SideLabel string    `gorm:"column:side_label;type:text;not null"`
	AddedAt   time.Time `gorm:"column:added_at;type:timestamptz;not null;default:now()"`
}

func (TopicMember) TableName() string { return "news.topic_members" }

// HomepageTopic maps news.homepage_topics, the rebuildable front-page projection.
type HomepageTopic struct {
	TopicID         int64     `gorm:"column:topic_id;type:bigint;primaryKey"`
	Title           string    `gorm:"column:title;type:text;not null"`
	LeftArticleID   *int64    `gorm:"column:left_article_id;type:bigint"`
	CenterArticleID *int64    `gorm:"column:center_article_id;type:bigint"`
	RightArticleID  *int64    `gorm:"column:right_article_id;type:bigint"`
	BlindspotSide   *string   `gorm:"column:blindspot_side;type:text"`
	ImportanceScore float64   `gorm:"column:importance_score;type:double precision;not null;default:0"`
	BuiltAt         time.Time `gorm:"column:built_at;type:timestamptz;not null;index"`
}

func (HomepageTopic) TableName() string { return "news.homepage_topics" }

func autoMigrateModels() []any {
	return []any{
		&Source{},
		&Article{},
		&BiasScore{},
		&Topic{},
		&TopicMember{},
		&HomepageTopic{},
	}
}
