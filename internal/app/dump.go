package app

import (
	"fmt"
	"time"

	"github.com/relabs-tech/air_monitor/internal/sensor"
	"github.com/relabs-tech/air_monitor/internal/store"
)

// RunDump prints the contents of a measurements database to stdout, most
// recent rows first, up to limit rows per quantity and sensor.
func RunDump(databasePath string, limit int) error {
	st := store.New(databasePath, 3*time.Second)
	if err := st.Begin(); err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.SensorIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("database is empty")
		return nil
	}

	for _, id := range ids {
		fmt.Printf("== sensor %s (0x%016X) ==\n", sensor.DescriptorFromID(id), uint64(id))
		dumpDoubles("temperature", "degC", id, limit, st.ReadTemperatures)
		dumpDoubles("relative_humidity", "%", id, limit, st.ReadRelativeHumidities)
		dumpDoubles("pressure", "hPa", id, limit, st.ReadPressures)
		dumpInts("carbon_dioxide", "ppm", id, limit, st.ReadCarbonDioxides)
		dumpInts("total_voc", "ppb", id, limit, st.ReadTotalVOCs)
	}
	return nil
}

type doubleReader func(order store.Order, id sensor.ID, limit int, cb store.ReadCallback[store.TimeAndDouble]) (int, error)
type intReader func(order store.Order, id sensor.ID, limit int, cb store.ReadCallback[store.TimeAndIntAndOptInt]) (int, error)

func dumpDoubles(table, unit string, id sensor.ID, limit int, read doubleReader) {
	header := false
	n, err := read(store.OrderDesc, id, limit, func(_ int, row store.TimeAndDouble) bool {
		if !header {
			fmt.Printf("-- %s --\n", table)
			header = true
		}
		fmt.Printf("%s  %10.3f %s\n", row.At.UTC().Format(time.RFC3339), row.Value, unit)
		return true
	})
	if err != nil {
		fmt.Printf("-- %s: read error after %d rows: %v\n", table, n, err)
	}
}

func dumpInts(table, unit string, id sensor.ID, limit int, read intReader) {
	header := false
	n, err := read(store.OrderDesc, id, limit, func(_ int, row store.TimeAndIntAndOptInt) bool {
		if !header {
			fmt.Printf("-- %s --\n", table)
			header = true
		}
		if row.Baseline != nil {
			fmt.Printf("%s  %7d %s  baseline=0x%04X\n",
				row.At.UTC().Format(time.RFC3339), row.Value, unit, *row.Baseline)
		} else {
			fmt.Printf("%s  %7d %s\n", row.At.UTC().Format(time.RFC3339), row.Value, unit)
		}
		return true
	})
	if err != nil {
		fmt.Printf("-- %s: read error after %d rows: %v\n", table, n, err)
	}
}
