package preprocessing

import (
	"os"
	"sort"

	"github.com/YuminosukeSato/penguinml/core/model"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// LabelEncoder は種名文字列と 0..k-1 のクラスインデックスを相互変換する
//
// クラスは辞書順に並べられ、インデックスはその位置になる。
// 学習時に一度だけFitし、推論側では保存済みのものを読み込むだけで再学習しない。
type LabelEncoder struct {
	state   *model.StateManager
	classes []string
	index   map[string]int
	runID   string
}

// labelEncoderState はgobで保存される形式
type labelEncoderState struct {
	Classes []string
	RunID   string
}

// NewLabelEncoder は未学習のLabelEncoderを作成する
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{state: model.NewStateManager()}
}

// Fit はラベル集合からクラス一覧を作成する
func (le *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}

	seen := make(map[string]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Strings(classes)

	le.setClasses(classes)
	le.state.SetDimensions(1, len(labels))
	le.state.SetFitted()
	return nil
}

// Transform はラベルをクラスインデックスに変換する
func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	if err := le.state.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, ok := le.index[l]
		if !ok {
			return nil, errors.Wrapf(errors.ErrUnknownLabel, "label %q", l)
		}
		out[i] = idx
	}
	return out, nil
}

// FitTransform はFitとTransformを続けて行う
func (le *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := le.Fit(labels); err != nil {
		return nil, err
	}
	return le.Transform(labels)
}

// InverseTransform はクラスインデックスをラベルに戻す
func (le *LabelEncoder) InverseTransform(indices []int) ([]string, error) {
	if err := le.state.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(le.classes) {
			return nil, errors.Wrapf(errors.ErrUnknownLabel, "class index %d out of range [0, %d)", idx, len(le.classes))
		}
		out[i] = le.classes[idx]
	}
	return out, nil
}

// Classes は辞書順のクラス一覧のコピーを返す
func (le *LabelEncoder) Classes() []string {
	return append([]string(nil), le.classes...)
}

// NumClasses はクラス数を返す
func (le *LabelEncoder) NumClasses() int {
	return len(le.classes)
}

// RunID は学習ランのIDを返す。未設定なら空文字
func (le *LabelEncoder) RunID() string {
	return le.runID
}

// SetRunID は学習ランのIDを設定する
func (le *LabelEncoder) SetRunID(id string) {
	le.runID = id
}

// Save はLabelEncoderをgob形式で保存する
func (le *LabelEncoder) Save(path string) error {
	if err := le.state.RequireFitted("LabelEncoder", "Save"); err != nil {
		return err
	}
	state := labelEncoderState{Classes: le.classes, RunID: le.runID}
	if err := model.SaveModel(&state, path); err != nil {
		return errors.Wrapf(err, "failed to save label encoder to %s", path)
	}
	return nil
}

// LoadLabelEncoder はSaveで保存されたLabelEncoderを読み込む
func LoadLabelEncoder(path string) (*LabelEncoder, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifactError("label encoder", path)
		}
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}

	var state labelEncoderState
	if err := model.LoadModel(&state, path); err != nil {
		return nil, err
	}
	if len(state.Classes) == 0 {
		return nil, errors.NewModelError("LoadLabelEncoder", "label encoder has no classes", errors.ErrEmptyData)
	}
	if !sort.StringsAreSorted(state.Classes) {
		return nil, errors.NewValueError("LoadLabelEncoder", "stored classes are not sorted")
	}

	le := NewLabelEncoder()
	le.setClasses(state.Classes)
	le.runID = state.RunID
	le.state.SetFitted()
	return le, nil
}

func (le *LabelEncoder) setClasses(classes []string) {
	le.classes = classes
	le.index = make(map[string]int, len(classes))
	for i, c := range classes {
		le.index[c] = i
	}
}
