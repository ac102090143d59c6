// Package domain maps classifier domains to corpus categories and retrieval parameters.
package domain

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// MergeBranch records which rule of MergeCategories produced the filter.
type MergeBranch string

const (
	MergeIntersection MergeBranch = "intersection"
	MergeDomain       MergeBranch = "domain"
	MergeEntity       MergeBranch = "entity"
	MergeNone         MergeBranch = "none"
)

var defaultCategories = map[models.Domain][]string{
	models.DomainLaw: {
		"Phap_luat_Viet_Nam",
		"hien_phap",
		"Quyen_nghia_vu",
		"cong_hoa_xa_hoi_chu_nghia_VN",
		"dang_cong_san_viet_nam",
	},
	models.DomainHistory: {
		"Lich_Su_Viet_nam",
		"Bac_Ho",
		"khang_chien_lon",
		"nhan_vat_lich_su_tieu_bieu",
		"nhan_vat_chinh_tri",
		"Tu_Tuong_HCM",
		"dang_cong_san_viet_nam",
	},
	models.DomainGeography: {
		"Dia_ly_viet_nam",
		"Dia_chinh_Viet_nam",
		"Dia_hinh_Viet_Nam",
		"Dia_dien_du_lich",
		"Khi_hau_thoi_tiet_thien_tai",
		"song_ngoi_bien_tai_nguyen_thien_nhien",
	},
	models.DomainCulture: {
		"Van_Hoa_Viet_Nam",
		"Van_hoa_am_thuc",
		"van_hoa_lang_xa",
		"Van_hoa_ung_xu",
		"Phong_tuc_tap_quan",
		"le_hoi_truyen_thong",
		"tin_nguong_ton_giao",
	},
	models.DomainPolitics: {
		"cong_hoa_xa_hoi_chu_nghia_VN",
		"dang_cong_san_viet_nam",
		"nhan_vat_chinh_tri",
		"Quoc_phong_Viet_nam",
		"Bac_Ho",
		"Tu_Tuong_HCM",
	},
	// GENERAL_KNOWLEDGE has no entry: no category filter.
}

var defaultConfigs = map[models.Domain]models.RetrievalConfig{
	models.DomainLaw:              {TopK: 5, SparseWeight: 0.3, DenseWeight: 0.7, UseTemporalFilter: true, TemporalBoost: 1.3},
	models.DomainHistory:          {TopK: 7, SparseWeight: 0.4, DenseWeight: 0.6, UseTemporalFilter: true, TemporalBoost: 1.5},
	models.DomainGeography:        {TopK: 3, SparseWeight: 0.2, DenseWeight: 0.8, UseTemporalFilter: false, TemporalBoost: 1.0},
	models.DomainCulture:          {TopK: 5, SparseWeight: 0.5, DenseWeight: 0.5, UseTemporalFilter: false, TemporalBoost: 1.1},
	models.DomainPolitics:         {TopK: 5, SparseWeight: 0.35, DenseWeight: 0.65, UseTemporalFilter: true, TemporalBoost: 1.2},
	models.DomainGeneralKnowledge: {TopK: 5, SparseWeight: 0.4, DenseWeight: 0.6, UseTemporalFilter: false, TemporalBoost: 1.0},
}

// entityKeywords maps lower-cased entity substrings to categories.
var entityKeywords = []struct {
	keyword    string
	categories []string
}{
	{"hiến pháp", []string{"hien_phap"}},
	{"luật", []string{"Phap_luat_Viet_Nam"}},
	{"bộ luật", []string{"Phap_luat_Viet_Nam"}},
	{"nghị định", []string{"Phap_luat_Viet_Nam"}},
	{"quyền", []string{"Quyen_nghia_vu"}},
	{"nghĩa vụ", []string{"Quyen_nghia_vu"}},
	{"quốc hội", []string{"cong_hoa_xa_hoi_chu_nghia_VN"}},
	{"chủ tịch nước", []string{"cong_hoa_xa_hoi_chu_nghia_VN"}},
	{"chính phủ", []string{"cong_hoa_xa_hoi_chu_nghia_VN"}},
	{"đảng cộng sản", []string{"dang_cong_san_viet_nam"}},
	{"đại hội đảng", []string{"dang_cong_san_viet_nam"}},
	{"hồ chí minh", []string{"Bac_Ho", "Tu_Tuong_HCM"}},
	{"bác hồ", []string{"Bac_Ho"}},
	{"tư tưởng", []string{"Tu_Tuong_HCM"}},
	{"kháng chiến", []string{"khang_chien_lon"}},
	{"điện biên phủ", []string{"khang_chien_lon", "Lich_Su_Viet_nam"}},
	{"triều", []string{"Lich_Su_Viet_nam"}},
	{"vua", []string{"Lich_Su_Viet_nam", "nhan_vat_lich_su_tieu_bieu"}},
	{"quân đội", []string{"Quoc_phong_Viet_nam"}},
	{"quốc phòng", []string{"Quoc_phong_Viet_nam"}},
	{"tỉnh", []string{"Dia_chinh_Viet_nam"}},
	{"sông", []string{"song_ngoi_bien_tai_nguyen_thien_nhien"}},
	{"biển", []string{"song_ngoi_bien_tai_nguyen_thien_nhien"}},
	{"núi", []string{"Dia_hinh_Viet_Nam"}},
	{"đồng bằng", []string{"Dia_hinh_Viet_Nam"}},
	{"khí hậu", []string{"Khi_hau_thoi_tiet_thien_tai"}},
	{"bão", []string{"Khi_hau_thoi_tiet_thien_tai"}},
	{"du lịch", []string{"Dia_dien_du_lich"}},
	{"lễ hội", []string{"le_hoi_truyen_thong"}},
	{"tết", []string{"Phong_tuc_tap_quan", "le_hoi_truyen_thong"}},
	{"phong tục", []string{"Phong_tuc_tap_quan"}},
	{"món ăn", []string{"Van_hoa_am_thuc"}},
	{"ẩm thực", []string{"Van_hoa_am_thuc"}},
	{"làng", []string{"van_hoa_lang_xa"}},
	{"tôn giáo", []string{"tin_nguong_ton_giao"}},
	{"tín ngưỡng", []string{"tin_nguong_ton_giao"}},
	{"chùa", []string{"tin_nguong_ton_giao"}},
}

// Mapper resolves domains to category sets and retrieval parameters.
// It is immutable after construction and safe for concurrent use.
type Mapper struct {
	categories map[models.Domain][]string
	configs    map[models.Domain]models.RetrievalConfig
	logger     *zap.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithConfigOverrides replaces the retrieval parameters of the listed domains.
// Invalid overrides are ignored with a warning.
func WithConfigOverrides(overrides map[string]models.RetrievalConfig) Option {
	return func(m *Mapper) {
		for name, cfg := range overrides {
			d, ok := models.ParseDomain(name)
			if !ok {
				m.logger.Warn("ignoring retrieval override for unknown domain", zap.String("domain", name))
				continue
			}
			if err := cfg.Validate(); err != nil {
				m.logger.Warn("ignoring invalid retrieval override", zap.String("domain", name), zap.Error(err))
				continue
			}
			m.configs[d] = cfg
		}
	}
}

// NewMapper creates a Mapper with the built-in tables.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		categories: defaultCategories,
		configs:    make(map[models.Domain]models.RetrievalConfig, len(defaultConfigs)),
		logger:     zap.NewNop(),
	}
	for d, cfg := range defaultConfigs {
		m.configs[d] = cfg
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CategoriesFor returns the category set of d. ok is false for GENERAL_KNOWLEDGE and unknown
// domains, meaning no filter.
func (m *Mapper) CategoriesFor(d models.Domain) (map[string]struct{}, bool) {
	cats, ok := m.categories[d]
	if !ok || len(cats) == 0 {
		return nil, false
	}
	return toSet(cats), true
}

// RetrievalConfigFor returns the parameters of d, or GENERAL_KNOWLEDGE's for unknown domains.
func (m *Mapper) RetrievalConfigFor(d models.Domain) models.RetrievalConfig {
	if cfg, ok := m.configs[d]; ok {
		return cfg
	}
	return m.configs[models.DomainGeneralKnowledge]
}

// EntityCategories maps key entities to categories by keyword. The result is nil when no
// entity matches.
func (m *Mapper) EntityCategories(entities []string) map[string]struct{} {
	var out map[string]struct{}
	for _, e := range entities {
		text := strings.ToLower(strings.TrimSpace(e))
		if text == "" {
			continue
		}
		for _, kw := range entityKeywords {
			if !strings.Contains(text, kw.keyword) {
				continue
			}
			if out == nil {
				out = make(map[string]struct{})
			}
			for _, c := range kw.categories {
				out[c] = struct{}{}
			}
		}
	}
	return out
}

// MergeCategories combines domain and entity categories: their intersection when non-empty,
// else the domain set, else the entity set, else nil (no filter).
func MergeCategories(domainCats, entityCats map[string]struct{}) (map[string]struct{}, MergeBranch) {
	if len(domainCats) > 0 {
		if len(entityCats) > 0 {
			inter := make(map[string]struct{})
			for c := range domainCats {
				if _, ok := entityCats[c]; ok {
					inter[c] = struct{}{}
				}
			}
			if len(inter) > 0 {
				return inter, MergeIntersection
			}
		}
		return domainCats, MergeDomain
	}
	if len(entityCats) > 0 {
		return entityCats, MergeEntity
	}
	return nil, MergeNone
}

// Resolve returns the category filter for a domain and its key entities.
func (m *Mapper) Resolve(d models.Domain, entities []string) (map[string]struct{}, MergeBranch) {
	domainCats, _ := m.CategoriesFor(d)
	cats, branch := MergeCategories(domainCats, m.EntityCategories(entities))
	m.logger.Debug("resolved category filter",
		zap.String("domain", string(d)),
		zap.String("branch", string(branch)),
		zap.Strings("categories", SortedCategories(cats)))
	return cats, branch
}

// SortedCategories returns the set's members in sorted order.
func SortedCategories(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}
