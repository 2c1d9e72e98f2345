package craftsman

import "harfy-backend/retrieval"

// Field labels of a rendered craftsman description. Renaming any of them
// breaks extraction of replies produced against older context.
const (
	LabelName          = "اسم الحرفي:"
	LabelCraft         = "المهنة:"
	LabelAddress       = "العنوان:"
	LabelCities        = "المدن:"
	LabelRating        = "التقييم:"
	LabelCompletedJobs = "الوظائف المنجزة:"
	LabelActiveJobs    = "الوظائف النشطة:"
	LabelDescription   = "الوصف:"
	LabelStatus        = "الحالة:"
	LabelImage         = "رابط الصورة:"
	LabelSourceID      = retrieval.SourceIDLabel
	LabelID            = retrieval.IDLabel
)

// Values written into descriptions.
const (
	NotSpecified   = "غير محدد"
	NotAvailable   = "غير متوفر"
	StatusFreeText = "متاح"
	StatusBusyText = "مشغول"
)

type fieldKey int

const (
	fieldName fieldKey = iota
	fieldCraft
	fieldAddress
	fieldCities
	fieldRating
	fieldCompletedJobs
	fieldActiveJobs
	fieldDescription
	fieldStatus
	fieldImage
	fieldSourceID
	fieldID
)

type field struct {
	key   fieldKey
	label string
	// multiline values run up to the next label; others stop at the line end.
	multiline bool
}

// fields is the scan order used by the extractor.
var fields = []field{
	{key: fieldName, label: LabelName},
	{key: fieldCraft, label: LabelCraft},
	{key: fieldAddress, label: LabelAddress},
	{key: fieldCities, label: LabelCities},
	{key: fieldRating, label: LabelRating},
	{key: fieldCompletedJobs, label: LabelCompletedJobs},
	{key: fieldActiveJobs, label: LabelActiveJobs},
	{key: fieldDescription, label: LabelDescription, multiline: true},
	{key: fieldStatus, label: LabelStatus},
	{key: fieldImage, label: LabelImage},
	{key: fieldSourceID, label: LabelSourceID},
	{key: fieldID, label: LabelID},
}
