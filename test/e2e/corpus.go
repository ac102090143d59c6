// Package e2e provides end-to-end tests over a Vietnamese corpus spread across categories.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// E2EDocument is one source document of the corpus. File is its name on disk.
type E2EDocument struct {
	File      string
	Category  string
	Title     string
	Content   string
	ValidFrom int
	ExpireAt  int
}

// QueryTestCase is a query and the document file(s) that must appear in its results.
type QueryTestCase struct {
	Query         string
	Domain        models.Domain
	Year          *int
	ExpectedFiles []string
	Description   string
}

// Corpus holds documents and query test cases for E2E tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalDocs    int
	TotalQueries int
}

// BuildCorpus returns the documents and one query case per signature phrase.
func BuildCorpus() *Corpus {
	docs := buildDocuments()
	cases := buildQueryTestCases(docs)
	return &Corpus{
		Documents:    docs,
		TestCases:    cases,
		TotalDocs:    len(docs),
		TotalQueries: len(cases),
	}
}

func buildDocuments() []E2EDocument {
	return []E2EDocument{
		{File: "hien_phap_2013.txt", Category: "hien_phap", Title: "Hiến pháp 2013",
			Content: "Hiến pháp năm 2013 khẳng định Quốc hội là cơ quan đại biểu cao nhất của Nhân dân. Quốc hội thực hiện quyền lập hiến và quyền lập pháp."},
		{File: "luat_dat_dai_2013.txt", Category: "Phap_luat_Viet_Nam", Title: "Luật Đất đai 2013", ValidFrom: 2013, ExpireAt: 2023,
			Content: "Luật Đất đai 2013 quy định khung giá đất do Chính phủ ban hành định kỳ năm năm một lần."},
		{File: "luat_dat_dai_2024.txt", Category: "Phap_luat_Viet_Nam", Title: "Luật Đất đai 2024", ValidFrom: 2024,
			Content: "Luật Đất đai 2024 bỏ khung giá đất; bảng giá đất do Ủy ban nhân dân cấp tỉnh ban hành hằng năm."},
		{File: "luat_giao_thong.txt", Category: "Phap_luat_Viet_Nam", Title: "Luật Giao thông đường bộ",
			Content: "Người điều khiển xe mô tô phải đội mũ bảo hiểm và có giấy phép lái xe hạng phù hợp."},
		{File: "dien_bien_phu.txt", Category: "khang_chien_lon", Title: "Chiến dịch Điện Biên Phủ",
			Content: "Chiến dịch Điện Biên Phủ do Đại tướng Võ Nguyên Giáp chỉ huy kết thúc thắng lợi ngày 7 tháng 5 năm 1954."},
		{File: "bach_dang.txt", Category: "Lich_Su_Viet_nam", Title: "Trận Bạch Đằng",
			Content: "Năm 938 Ngô Quyền đánh tan quân Nam Hán trên sông Bạch Đằng bằng trận địa cọc gỗ cắm dưới lòng sông."},
		{File: "hai_ba_trung.txt", Category: "nhan_vat_lich_su_tieu_bieu", Title: "Hai Bà Trưng",
			Content: "Năm 40 Trưng Trắc và Trưng Nhị khởi nghĩa ở Mê Linh chống ách đô hộ nhà Đông Hán."},
		{File: "tuyen_ngon_doc_lap.txt", Category: "Bac_Ho", Title: "Tuyên ngôn độc lập",
			Content: "Ngày 2 tháng 9 năm 1945 tại Quảng trường Ba Đình, Chủ tịch Hồ Chí Minh đọc bản Tuyên ngôn độc lập."},
		{File: "fansipan.txt", Category: "Dia_hinh_Viet_Nam", Title: "Đỉnh Fansipan",
			Content: "Fansipan thuộc dãy Hoàng Liên Sơn, cao 3143 mét, được gọi là nóc nhà Đông Dương."},
		{File: "song_mekong.txt", Category: "song_ngoi_bien_tai_nguyen_thien_nhien", Title: "Sông Mê Kông",
			Content: "Sông Mê Kông chảy qua sáu quốc gia và đổ ra Biển Đông qua chín cửa nên còn gọi là Cửu Long."},
		{File: "vinh_ha_long.txt", Category: "Dia_dien_du_lich", Title: "Vịnh Hạ Long",
			Content: "Vịnh Hạ Long ở Quảng Ninh có gần hai nghìn hòn đảo đá vôi và được UNESCO công nhận là di sản thiên nhiên thế giới."},
		{File: "khi_hau_mien_bac.txt", Category: "Khi_hau_thoi_tiet_thien_tai", Title: "Khí hậu miền Bắc",
			Content: "Miền Bắc có mùa đông lạnh do gió mùa đông bắc thổi từ áp cao Xibia tràn xuống."},
		{File: "pho_ha_noi.txt", Category: "Van_hoa_am_thuc", Title: "Phở Hà Nội",
			Content: "Phở bò Hà Nội nấu nước dùng từ xương ống ninh lâu với quế hồi thảo quả và gừng nướng."},
		{File: "tet_nguyen_dan.txt", Category: "Phong_tuc_tap_quan", Title: "Tết Nguyên Đán",
			Content: "Ngày Tết người Việt gói bánh chưng, dán câu đối đỏ và đi lễ chùa đầu năm để cầu may mắn."},
		{File: "hoi_giong.txt", Category: "le_hoi_truyen_thong", Title: "Hội Gióng",
			Content: "Hội Gióng ở đền Phù Đổng tưởng nhớ Thánh Gióng cưỡi ngựa sắt đánh giặc Ân, diễn ra mùng chín tháng tư âm lịch."},
		{File: "dinh_lang.txt", Category: "van_hoa_lang_xa", Title: "Đình làng",
			Content: "Đình làng là nơi thờ Thành hoàng và là trung tâm sinh hoạt cộng đồng của làng xã Bắc Bộ."},
		{File: "quoc_phong.txt", Category: "Quoc_phong_Viet_nam", Title: "Chính sách quốc phòng",
			Content: "Sách trắng quốc phòng nêu chính sách bốn không: không tham gia liên minh quân sự, không đặt căn cứ quân sự nước ngoài."},
		{File: "dai_hoi_dang.txt", Category: "dang_cong_san_viet_nam", Title: "Đại hội Đảng",
			Content: "Đại hội đại biểu toàn quốc lần thứ sáu năm 1986 khởi xướng công cuộc Đổi mới toàn diện đất nước."},
	}
}

// queryPhrases map a query to the document it must retrieve.
var queryPhrases = []struct {
	query  string
	domain models.Domain
	year   int
	file   string
}{
	{"Quốc hội quyền lập hiến lập pháp", models.DomainLaw, 0, "hien_phap_2013.txt"},
	{"khung giá đất năm năm một lần", models.DomainLaw, 2020, "luat_dat_dai_2013.txt"},
	{"bảng giá đất ban hành hằng năm", models.DomainLaw, 2025, "luat_dat_dai_2024.txt"},
	{"đội mũ bảo hiểm xe mô tô", models.DomainLaw, 0, "luat_giao_thong.txt"},
	{"Võ Nguyên Giáp chỉ huy Điện Biên Phủ", models.DomainHistory, 0, "dien_bien_phu.txt"},
	{"Ngô Quyền sông Bạch Đằng cọc gỗ", models.DomainHistory, 0, "bach_dang.txt"},
	{"Trưng Trắc Trưng Nhị Mê Linh", models.DomainHistory, 0, "hai_ba_trung.txt"},
	{"Tuyên ngôn độc lập Ba Đình", models.DomainHistory, 0, "tuyen_ngon_doc_lap.txt"},
	{"Fansipan Hoàng Liên Sơn cao bao nhiêu mét", models.DomainGeography, 0, "fansipan.txt"},
	{"sông Mê Kông Cửu Long chín cửa", models.DomainGeography, 0, "song_mekong.txt"},
	{"Vịnh Hạ Long đảo đá vôi UNESCO", models.DomainGeography, 0, "vinh_ha_long.txt"},
	{"gió mùa đông bắc áp cao Xibia", models.DomainGeography, 0, "khi_hau_mien_bac.txt"},
	{"phở bò nước dùng xương ống quế hồi", models.DomainCulture, 0, "pho_ha_noi.txt"},
	{"gói bánh chưng câu đối đỏ", models.DomainCulture, 0, "tet_nguyen_dan.txt"},
	{"Thánh Gióng ngựa sắt đền Phù Đổng", models.DomainCulture, 0, "hoi_giong.txt"},
	{"đình làng thờ Thành hoàng", models.DomainCulture, 0, "dinh_lang.txt"},
	{"chính sách bốn không liên minh quân sự", models.DomainPolitics, 0, "quoc_phong.txt"},
	{"Đổi mới năm 1986 Đại hội lần thứ sáu", models.DomainGeneralKnowledge, 0, "dai_hoi_dang.txt"},
}

func buildQueryTestCases(docs []E2EDocument) []QueryTestCase {
	byFile := make(map[string]E2EDocument, len(docs))
	for _, d := range docs {
		byFile[d.File] = d
	}
	var cases []QueryTestCase
	for _, p := range queryPhrases {
		if _, ok := byFile[p.file]; !ok {
			continue
		}
		tc := QueryTestCase{
			Query:         p.query,
			Domain:        p.domain,
			ExpectedFiles: []string{p.file},
			Description:   fmt.Sprintf("query %q should return %s", p.query, p.file),
		}
		if p.year > 0 {
			y := p.year
			tc.Year = &y
		}
		cases = append(cases, tc)
	}
	return cases
}

// containsPhrase reports whether phrase occurs in the title or content, ignoring case.
func containsPhrase(d E2EDocument, phrase string) bool {
	phrase = strings.ToLower(phrase)
	return strings.Contains(strings.ToLower(d.Title), phrase) || strings.Contains(strings.ToLower(d.Content), phrase)
}

// Categories returns the distinct categories in first-seen order.
func (c *Corpus) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range c.Documents {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	return out
}
