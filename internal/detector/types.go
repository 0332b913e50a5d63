package detector

// Result is one prediction. Confidence is the raw score at the argmax index;
// the models end in a softmax layer, so it is already in [0,1].
type Result struct {
	Label      string    `json:"disease"`
	Confidence float32   `json:"confidence"`
	ClassIndex int       `json:"class_index"`
	Scores     []float32 `json:"confidence_scores,omitempty"`
}

// BatchItem is one entry of a batch prediction. Err is set when this item
// failed; failures never abort the rest of the batch.
type BatchItem struct {
	ImagePath string  `json:"image_path"`
	Result    *Result `json:"result,omitempty"`
	Err       error   `json:"-"`
}

// Info describes the current state of a detector for health reporting.
type Info struct {
	ModelPath    string `json:"model_path"`
	Format       string `json:"format"`
	LabelsLoaded bool   `json:"labels_loaded"`
	ImageWidth   int    `json:"image_width"`
	ImageHeight  int    `json:"image_height"`
	NumClasses   int    `json:"num_classes"`
}

// Layout is the channel ordering of the model's input tensor.
type Layout string

const (
	LayoutNHWC Layout = "nhwc" // channels-last, the TF/Keras convention
	LayoutNCHW Layout = "nchw" // channels-first
)
