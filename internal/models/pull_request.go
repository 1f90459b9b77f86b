package models

import (
	"time"

	"gorm.io/datatypes"
)

// PullRequest is one ingested code-review item, keyed by the provider id.
// Enrichment fields (reviewers, files, counts) are best-effort and may be
// empty when enrichment degraded to base fields.
type PullRequest struct {
	TenantID            string         `gorm:"primaryKey;type:text;comment:租户ID"`
	ID                  string         `gorm:"primaryKey;type:text;comment:PR唯一标识"`
	Number              int            `gorm:"not null;comment:PR编号"`
	Title               string         `gorm:"type:text;comment:标题"`
	Body                string         `gorm:"type:text;comment:描述(含评论摘要)"`
	State               string         `gorm:"type:text;index;comment:状态"`
	IsMerged            bool           `gorm:"not null;default:false;comment:是否已合并"`
	IsDraft             bool           `gorm:"not null;default:false;comment:是否草稿"`
	URL                 string         `gorm:"type:text;comment:链接"`
	RepoFullName        string         `gorm:"type:text;index;comment:仓库全名"`
	Author              string         `gorm:"type:text;comment:作者"`
	SourceCreatedAt     *time.Time     `gorm:"comment:源创建时间"`
	SourceUpdatedAt     *time.Time     `gorm:"index;comment:源更新时间"`
	SourceClosedAt      *time.Time     `gorm:"comment:远端关闭时间"`
	SourceMergedAt      *time.Time     `gorm:"comment:远端合并时间"`
	BaseBranch          string         `gorm:"type:text;comment:目标分支"`
	HeadBranch          string         `gorm:"type:text;comment:来源分支"`
	MergeCommitSHA      *string        `gorm:"type:text;comment:合并提交SHA"`
	MergeMethod         *string        `gorm:"type:text;comment:合并方式"`
	MergedBy            *string        `gorm:"type:text;comment:合并人"`
	Additions           int            `gorm:"not null;default:0;comment:新增行数"`
	Deletions           int            `gorm:"not null;default:0;comment:删除行数"`
	ChangedFiles        int            `gorm:"not null;default:0;comment:变更文件数"`
	FilesChanged        datatypes.JSON `gorm:"comment:变更文件列表(截断)"`
	Reviewers           datatypes.JSON `gorm:"comment:评审人列表"`
	ApprovedBy          datatypes.JSON `gorm:"comment:批准人列表"`
	ReviewCommentsCount int            `gorm:"not null;default:0;comment:评审评论数"`
	CommentsCount       int            `gorm:"not null;default:0;comment:评论数"`
	CommitsCount        int            `gorm:"not null;default:0;comment:提交数"`
	StoredAt            time.Time      `gorm:"autoUpdateTime;comment:入库时间"`
}

func (PullRequest) TableName() string {
	return "pull_requests"
}
