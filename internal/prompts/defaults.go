package prompts

const answerFormat = `Trả lời bằng một đối tượng JSON duy nhất: {"answer": "<chữ cái>"}.`

var defaults = map[Name]Prompt{
	Classification: {
		System: `Bạn là bộ phân loại câu hỏi trắc nghiệm tiếng Việt. Chỉ trả về JSON, không giải thích thêm.`,
		User:   `Phân loại câu hỏi sau.

{{.Question}}

Trả về JSON với các trường:
- "category": một trong "RETRIEVAL" (cần tra cứu kiến thức), "MATH" (toán, khoa học, tính toán), "READING" (đọc hiểu đoạn văn cho sẵn), "SAFETY" (nội dung nguy hại, vi phạm pháp luật)
- "domain": một trong "LAW", "HISTORY", "GEOGRAPHY", "CULTURE", "POLITICS", "GENERAL_KNOWLEDGE"
- "temporal_constraint": năm (số nguyên) nếu câu hỏi gắn với một năm cụ thể, ngược lại null
- "key_entities": danh sách thực thể chính (tên riêng, địa danh, tên văn bản)`,
	},
	Safety: {
		System: `Bạn là trợ lý tuân thủ pháp luật và đạo đức. Với câu hỏi có nội dung nguy hại, hãy chọn phương án thể hiện sự từ chối hoặc không cung cấp thông tin nguy hại. ` + answerFormat,
		User:   `{{.Question}}

Chọn phương án từ chối hoặc tuân thủ pháp luật.`,
	},
	Math: {
		System: `Bạn là chuyên gia toán học và khoa học. Hãy suy nghĩ từng bước trước khi chọn đáp án. ` + answerFormat,
		User:   `{{.Question}}

Hãy suy nghĩ từng bước:
Bước 1: Xác định thông tin được cung cấp
Bước 2: Xác định những gì cần tìm
Bước 3: Lựa chọn công thức hoặc phương pháp phù hợp
Bước 4: Thực hiện tính toán
Bước 5: Kiểm tra kết quả`,
	},
	Reading: {
		System: `Bạn là chuyên gia đọc hiểu tiếng Việt. Chỉ dựa vào đoạn văn trong câu hỏi để trả lời. ` + answerFormat,
		User:   `{{.Question}}

Đọc kỹ đoạn văn, tìm câu chứa thông tin liên quan rồi chọn đáp án.`,
	},
	RAG: {
		System: `Bạn là trợ lý trả lời câu hỏi trắc nghiệm về kiến thức Việt Nam. ` + answerFormat,
		User:   `{{.Question}}`,
	},
	RAGWithContext: {
		System: `Bạn là trợ lý trả lời câu hỏi trắc nghiệm dựa trên ngữ cảnh được cung cấp. Ưu tiên thông tin trong ngữ cảnh; nếu ngữ cảnh không đủ, dùng kiến thức chung. ` + answerFormat,
		User:   `NGỮ CẢNH:
{{.Context}}

{{.Question}}`,
	},
}
