package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/penguin"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// Schema は学習時と推論時で共有する固定の特徴量列（順序込み）
//
// カテゴリ列はone-hot展開され `<属性>_<カテゴリ>` という名前になる。
// バッチに現れないカテゴリも必ず0の列として含まれる。
var Schema = [...]string{
	"bill_length_mm",
	"bill_depth_mm",
	"flipper_length_mm",
	"body_mass_g",
	"sex_Female",
	"sex_Male",
	"island_Biscoe",
	"island_Dream",
	"island_Torgersen",
}

// NumFeatures はSchemaの列数
const NumFeatures = len(Schema)

// SchemaColumns はSchemaのコピーを返す
func SchemaColumns() []string {
	cols := make([]string, NumFeatures)
	copy(cols, Schema[:])
	return cols
}

// 予測に使わない属性
var nonPredictive = []string{"year"}

// one-hot展開するカテゴリ属性
var categoricalColumns = []string{"sex", "island"}

// FeatureEncoder はRecordを固定幅の特徴量ベクトルに変換する
//
// 状態を持たないため、ゼロ値のまま学習パイプラインと推論エンドポイントの
// 双方から並行に使用できる。
type FeatureEncoder struct{}

// NewFeatureEncoder は新しいFeatureEncoderを作成する
func NewFeatureEncoder() FeatureEncoder {
	return FeatureEncoder{}
}

// Columns はエンコード後の列名を返す
func (FeatureEncoder) Columns() []string {
	return SchemaColumns()
}

// Encode は1件のRecordをSchema順の特徴量ベクトルに変換する
func (e FeatureEncoder) Encode(r penguin.Record) ([]float64, error) {
	X, err := e.EncodeBatch([]penguin.Record{r})
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, 0, X), nil
}

// EncodeBatch は複数のRecordを (n_samples × NumFeatures) の行列に変換する
//
// 手順:
//  1. 予測に使わない属性（year）を落とす
//  2. sex, islandをバッチ内に現れたカテゴリごとの0/1列に展開する
//  3. Schemaにあって展開結果にない列を0で補う
//  4. Schema順に並べ替え、Schemaにない列を落とす
//  5. 結果がSchemaと完全に一致することを確認する
func (FeatureEncoder) EncodeBatch(records []penguin.Record) (*mat.Dense, error) {
	if len(records) == 0 {
		return nil, errors.NewModelError("FeatureEncoder.EncodeBatch", "empty data", errors.ErrEmptyData)
	}
	for i, r := range records {
		if !r.Sex.Valid() {
			return nil, errors.NewValidationError("sex", "unknown category reached the encoder", recordValue(i, string(r.Sex)))
		}
		if !r.Island.Valid() {
			return nil, errors.NewValidationError("island", "unknown category reached the encoder", recordValue(i, string(r.Island)))
		}
	}

	f := newFrame(records)
	f.drop(nonPredictive...)
	f.oneHot(categoricalColumns...)
	f.zeroFill(Schema[:])
	f.selectColumns(Schema[:])

	if err := f.checkSchema(Schema[:]); err != nil {
		return nil, err
	}
	return f.dense(), nil
}

func recordValue(row int, v string) map[string]interface{} {
	return map[string]interface{}{"row": row, "value": v}
}

// frame は列指向の小さなテーブル。列の順序は追加順で保持する
type frame struct {
	rows        int
	columns     []string
	numeric     map[string][]float64
	categorical map[string][]string
}

func newFrame(records []penguin.Record) *frame {
	n := len(records)
	f := &frame{
		rows:        n,
		numeric:     make(map[string][]float64),
		categorical: make(map[string][]string),
	}

	billLength := make([]float64, n)
	billDepth := make([]float64, n)
	flipper := make([]float64, n)
	mass := make([]float64, n)
	year := make([]float64, n)
	sex := make([]string, n)
	island := make([]string, n)
	for i, r := range records {
		billLength[i] = r.BillLengthMM
		billDepth[i] = r.BillDepthMM
		flipper[i] = r.FlipperLengthMM
		mass[i] = r.BodyMassG
		year[i] = float64(r.Year)
		sex[i] = string(r.Sex)
		island[i] = string(r.Island)
	}

	f.addNumeric("bill_length_mm", billLength)
	f.addNumeric("bill_depth_mm", billDepth)
	f.addNumeric("flipper_length_mm", flipper)
	f.addNumeric("body_mass_g", mass)
	f.addNumeric("year", year)
	f.addCategorical("sex", sex)
	f.addCategorical("island", island)
	return f
}

func (f *frame) addNumeric(name string, values []float64) {
	f.columns = append(f.columns, name)
	f.numeric[name] = values
}

func (f *frame) addCategorical(name string, values []string) {
	f.columns = append(f.columns, name)
	f.categorical[name] = values
}

func (f *frame) drop(names ...string) {
	for _, name := range names {
		delete(f.numeric, name)
		delete(f.categorical, name)
		f.columns = removeColumn(f.columns, name)
	}
}

// oneHot replaces each categorical column with one 0/1 column per category
// present in the frame, appended in sorted category order.
func (f *frame) oneHot(names ...string) {
	for _, name := range names {
		values, ok := f.categorical[name]
		if !ok {
			continue
		}

		seen := make(map[string]struct{})
		for _, v := range values {
			seen[v] = struct{}{}
		}
		categories := make([]string, 0, len(seen))
		for v := range seen {
			categories = append(categories, v)
		}
		sort.Strings(categories)

		delete(f.categorical, name)
		f.columns = removeColumn(f.columns, name)
		for _, cat := range categories {
			col := make([]float64, f.rows)
			for i, v := range values {
				if v == cat {
					col[i] = 1
				}
			}
			f.addNumeric(name+"_"+cat, col)
		}
	}
}

// zeroFill adds every expected column that the expansion did not produce,
// with all values 0. A category missing from the batch still yields its
// column.
func (f *frame) zeroFill(expected []string) {
	for _, name := range expected {
		if _, ok := f.numeric[name]; ok {
			continue
		}
		if _, ok := f.categorical[name]; ok {
			continue
		}
		f.addNumeric(name, make([]float64, f.rows))
	}
}

// selectColumns reorders to expected and drops anything else.
func (f *frame) selectColumns(expected []string) {
	keep := make(map[string]bool, len(expected))
	for _, name := range expected {
		keep[name] = true
	}
	for _, name := range f.columns {
		if !keep[name] {
			delete(f.numeric, name)
			delete(f.categorical, name)
		}
	}

	ordered := make([]string, 0, len(expected))
	for _, name := range expected {
		if _, ok := f.numeric[name]; ok {
			ordered = append(ordered, name)
			continue
		}
		if _, ok := f.categorical[name]; ok {
			ordered = append(ordered, name)
		}
	}
	f.columns = ordered
}

func (f *frame) checkSchema(expected []string) error {
	mismatch := len(f.columns) != len(expected) || len(f.categorical) != 0
	if !mismatch {
		for i, name := range expected {
			if f.columns[i] != name {
				mismatch = true
				break
			}
			if len(f.numeric[name]) != f.rows {
				mismatch = true
				break
			}
		}
	}
	if mismatch {
		got := make([]string, len(f.columns))
		copy(got, f.columns)
		return errors.NewSchemaMismatchError("encode", append([]string(nil), expected...), got)
	}
	return nil
}

func (f *frame) dense() *mat.Dense {
	X := mat.NewDense(f.rows, len(f.columns), nil)
	for j, name := range f.columns {
		X.SetCol(j, f.numeric[name])
	}
	return X
}

func removeColumn(columns []string, name string) []string {
	out := columns[:0]
	for _, c := range columns {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}
