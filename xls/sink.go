package xls

// Sink receives the decoded tables of a workbook.
type Sink interface {
	// CreateTable starts a table for a sheet that extracted successfully.
	CreateTable(name string) TableSink

	// MarkInvalid flags the dataset as incomplete. It may be called for
	// several sheets while the remaining sheets still load.
	MarkInvalid(err error)
}

// TableSink receives the columns and rows of one table, in the order
// BeginLoad, AddColumn..., AddRow..., EndLoad.
type TableSink interface {
	AddExtendedProperty(key, value string)
	BeginLoad()
	AddColumn(name string)
	AddRow(values []Value)
	EndLoad()
}

// Extended property keys set on every table.
const (
	PropertyVisibleState = "visiblestate"
)

// DataSet is an in-memory Sink.
type DataSet struct {
	// Tables holds one table per loaded sheet, in sheet order.
	Tables []*DataTable

	// Invalid is set once any sheet failed.
	Invalid bool

	// Errors holds the failure of each sheet that could not be loaded.
	Errors []error
}

// NewDataSet creates an empty DataSet.
func NewDataSet() *DataSet {
	return &DataSet{}
}

// CreateTable implements Sink.
func (d *DataSet) CreateTable(name string) TableSink {
	t := &DataTable{Name: name, ExtendedProperties: make(map[string]string)}
	d.Tables = append(d.Tables, t)
	return t
}

// MarkInvalid implements Sink.
func (d *DataSet) MarkInvalid(err error) {
	d.Invalid = true
	if err != nil {
		d.Errors = append(d.Errors, err)
	}
}

// Table returns the table with the given name.
func (d *DataSet) Table(name string) (*DataTable, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// DataTable is an in-memory TableSink.
type DataTable struct {
	Name               string
	ExtendedProperties map[string]string
	Columns            []string
	Rows               [][]Value

	// Loading is true between BeginLoad and EndLoad.
	Loading bool
}

func (t *DataTable) AddExtendedProperty(key, value string) {
	t.ExtendedProperties[key] = value
}

func (t *DataTable) BeginLoad() { t.Loading = true }

func (t *DataTable) AddColumn(name string) {
	t.Columns = append(t.Columns, name)
}

func (t *DataTable) AddRow(values []Value) {
	t.Rows = append(t.Rows, values)
}

func (t *DataTable) EndLoad() { t.Loading = false }
