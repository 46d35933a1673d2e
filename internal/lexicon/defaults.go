package lexicon

import "strings"

var defaultStopwords = strings.Fields(`
세트 선물세트 모음 모음전 구성 증정 행사 정품 정기 무료 특가 사은품 선물 혼합 혼합세트 묶음 총 택
옵션 국내산 수입산 무료배송 당일 당일발송 예약 신상 히트 인기 추천 기획 기획세트 명품 프리미엄 리미티드
한정 본품 리뉴얼 정가 정상가 행사상품 대용량 소용량 박스 리필 업소용 가정용 편의점 오리지널 리얼 신제품 공식 단독
정기구독 구독 사은 혜택 특전 한정판 고당도 산지 당일 당일직송 직송 손질 세척 냉동 냉장 생물 해동 숙성
팩 봉 포 개 입 병 캔 스틱 정 포기 세트구성 골라담기 택1 택일 실속 못난이 파우치 슬라이스 인분 종
`)

var defaultRoots = []string{
	"육수", "다시", "사골", "곰탕", "장국", "티백", "멸치", "황태", "디포리", "가쓰오", "가다랭이",
	"주꾸미", "쭈꾸미", "오징어", "한치", "문어", "낙지", "새우", "꽃게", "홍게", "대게", "게",
	"김치", "포기김치", "열무김치", "갓김치", "동치미", "만두", "교자", "왕교자", "라면", "우동", "국수", "칼국수", "냉면",
	"사리", "메밀", "막국수", "어묵", "오뎅", "두부", "순두부", "유부", "우유", "치즈", "요거트", "버터",
	"닭", "닭가슴살", "닭다리", "닭안심", "돼지", "돼지고기", "삼겹살", "목살", "소고기", "한우", "양지", "사태", "갈비", "차돌",
	"식용유", "참기름", "들기름", "설탕", "소금", "고추장", "된장", "간장", "쌈장", "고춧가루", "카레", "짜장", "분말",
	"명란", "명란젓", "젓갈", "어란", "창란", "창란젓", "오징어젓", "낙지젓",
}

var defaultStrongNgrams = []string{
	"사골곰탕", "포기김치", "왕교자", "어묵탕", "갈비탕", "육개장", "사골국물", "황태채", "국물티백",
}

var defaultVariants = map[string][]string{
	"주꾸미": {"쭈꾸미"},
	"가쓰오": {"가츠오", "가쓰오부시", "가츠오부시"},
	"명태":  {"북어"},
	"어묵":  {"오뎅"},
	"백명란": {"명란", "명란젓"},
}
