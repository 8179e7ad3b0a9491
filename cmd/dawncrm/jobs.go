package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"dawncrm/backend"
	"dawncrm/internal/app"
	"dawncrm/internal/utils"

	"github.com/spf13/cobra"
)

func jobEntity() entity[backend.Job] {
	return entity[backend.Job]{
		kind:    "job",
		plural:  "jobs",
		aliases: []string{"jobs"},
		list:    (*backend.Store).Jobs,
		update:  (*backend.Store).UpdateJob,
		remove:  removeWith("job", (*backend.Store).DeleteJob),
		protected: map[string]string{
			"status":  "Use 'dawncrm job status <id> <status>' so the change is recorded and the customer notified",
			"history": "History is written by status changes",
			"images":  "Use 'dawncrm job image add|rm'",
		},
		columns: jobColumns,
	}
}

func jobColumns(c *cli, store *backend.Store) []column[backend.Job] {
	return []column[backend.Job]{
		{"ID", func(r backend.Job) string { return shortID(r.ID) }},
		{"TITLE", func(r backend.Job) string { return r.Title }},
		{"CUSTOMER", func(r backend.Job) string { return c.customerName(store, r.CustomerID) }},
		{"VEHICLE", func(r backend.Job) string { return orDash(vehicle(r)) }},
		{"STATUS", func(r backend.Job) string { return r.Status }},
		{"DUE", func(r backend.Job) string { return c.date(r.DueDate) }},
	}
}

func vehicle(j backend.Job) string {
	var parts []string
	if j.VehicleYear > 0 {
		parts = append(parts, fmt.Sprint(j.VehicleYear))
	}
	for _, p := range []string{j.VehicleMake, j.VehicleModel} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (c *cli) newJobCmd() *cobra.Command {
	e := jobEntity()
	cmd := e.command(c)
	cmd.Long = `Manage jobs: work orders on a customer's vehicle.

A job moves through the workflow statuses (see 'dawncrm status list').
Status changes are recorded in the job history and, when enabled in the
settings, sent to the customer by email or WhatsApp.

Examples:
  dawncrm job add "Satin black wrap" --customer 3f2a --make BMW --model M3 --year 2021
  dawncrm job list --where status="In Progress"
  dawncrm job status 9c1e "Ready for Pickup" --note "Keys at front desk"
  dawncrm job image add 9c1e ./after.jpg --stage Completed`

	cmd.AddCommand(c.newJobAddCmd(e), c.newJobStatusCmd(e), c.newJobHistoryCmd(e), c.newJobImageCmd(e))
	return cmd
}

func (c *cli) newJobAddCmd(e entity[backend.Job]) *cobra.Command {
	var (
		customerID, vehicleMake, model, color, plate, vin string
		priority, due, start, notes, status               string
		year                                              int
		estimate                                          float64
		services, sets                                    []string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			store := a.Store()

			job := backend.Job{
				Title:         args[0],
				VehicleMake:   vehicleMake,
				VehicleModel:  model,
				VehicleYear:   year,
				VehicleColor:  color,
				LicensePlate:  plate,
				VIN:           vin,
				Priority:      priority,
				EstimatedCost: estimate,
				Notes:         notes,
				Status:        status,
			}
			if err := utils.ValidateAmount("estimate", estimate); err != nil {
				return err
			}
			if customerID != "" {
				customer, err := customerEntity().find(store, customerID)
				if err != nil {
					return err
				}
				job.CustomerID = customer.ID
			}
			for _, s := range services {
				svc, err := serviceEntity().find(store, s)
				if err != nil {
					return err
				}
				job.ServiceIDs = append(job.ServiceIDs, svc.ID)
				if estimate == 0 {
					job.EstimatedCost += svc.Price
				}
			}
			if job.StartDate, err = utils.ParseDateInput(start, c.now()); err != nil {
				return err
			}
			if job.DueDate, err = utils.ParseDateInput(due, c.now()); err != nil {
				return err
			}
			if err := utils.ValidateDates(job.StartDate, job.DueDate); err != nil {
				return err
			}
			if status != "" {
				if err := checkStatus(store, status); err != nil {
					return err
				}
			}

			patch, err := parseSets(sets, c.now())
			if err != nil {
				return err
			}
			if err := applyPatch(&job, patch); err != nil {
				return err
			}

			created := store.AddJob(job)
			c.success(cmd, "Added job %s: %s (%s)", shortID(created.ID), created.Title, orDash(created.Status))
			return c.emit(cmd, created, func(io.Writer) error { return nil })
		},
	}

	f := cmd.Flags()
	f.StringVarP(&customerID, "customer", "c", "", "customer id or id prefix")
	f.StringVar(&vehicleMake, "make", "", "vehicle make")
	f.StringVar(&model, "model", "", "vehicle model")
	f.IntVar(&year, "year", 0, "vehicle year")
	f.StringVar(&color, "color", "", "vehicle color")
	f.StringVar(&plate, "plate", "", "license plate")
	f.StringVar(&vin, "vin", "", "vehicle identification number")
	f.StringArrayVar(&services, "service", nil, "service id from the catalogue (repeatable)")
	f.StringVar(&priority, "priority", "normal", "low, normal, high or urgent")
	f.Float64Var(&estimate, "estimate", 0, "estimated cost (defaults to the sum of the services)")
	f.StringVar(&start, "start", "", "start date (YYYY-MM-DD or e.g. \"next monday\")")
	f.StringVar(&due, "due", "", "due date (YYYY-MM-DD or e.g. \"in 2 weeks\")")
	f.StringVar(&status, "status", "", "initial status (default: first workflow status)")
	f.StringVar(&notes, "notes", "", "internal notes")
	f.StringArrayVar(&sets, "set", nil, "field=value to set (repeatable)")
	return cmd
}

func customerEntity() entity[backend.Customer] {
	return entity[backend.Customer]{kind: "customer", plural: "customers", list: (*backend.Store).Customers}
}

func serviceEntity() entity[backend.Service] {
	return entity[backend.Service]{kind: "service", plural: "services", list: (*backend.Store).Services}
}

func checkStatus(store *backend.Store, name string) error {
	statuses := store.Statuses()
	if len(statuses) == 0 {
		return nil
	}
	valid := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if st.Name == name {
			return nil
		}
		valid = append(valid, st.Name)
	}
	return utils.ErrInvalidStatus(name, valid)
}

func (c *cli) newJobStatusCmd(e entity[backend.Job]) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a job to another workflow status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			job, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			change, err := a.SetJobStatus(cmd.Context(), job.ID, args[1], note)
			if err != nil {
				return err
			}
			reportStatusChange(c, cmd, change)
			return c.emit(cmd, change.Job, func(io.Writer) error { return nil })
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note recorded in the job history")
	return cmd
}

func reportStatusChange(c *cli, cmd *cobra.Command, change app.StatusChange) {
	if change.Previous == change.Job.Status {
		c.success(cmd, "Job %s already %s", shortID(change.Job.ID), change.Job.Status)
		return
	}
	c.success(cmd, "Job %s: %s → %s", shortID(change.Job.ID), orDash(change.Previous), change.Job.Status)
	switch {
	case change.NotifyErr != nil:
		c.warn(cmd, "Customer notification failed: %v", change.NotifyErr)
	case change.Notified:
		c.success(cmd, "Customer notified")
	}
}

func (c *cli) newJobHistoryCmd(e entity[backend.Job]) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the status history of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			job, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			return c.emit(cmd, job.History, func(w io.Writer) error {
				return renderTable(w, []column[backend.HistoryEntry]{
					{"DATE", func(h backend.HistoryEntry) string { return h.Date.Local().Format("2006-01-02 15:04") }},
					{"STATUS", func(h backend.HistoryEntry) string { return h.Status }},
					{"NOTE", func(h backend.HistoryEntry) string { return orDash(h.Note) }},
				}, job.History)
			})
		},
	}
}

func (c *cli) newJobImageCmd(e entity[backend.Job]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Attach or remove job photos",
	}

	var stage string
	addCmd := &cobra.Command{
		Use:   "add <job-id> <file>",
		Short: "Attach a photo to a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			job, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			if stage == "" {
				stage = job.Status
			}
			img, ok := a.Store().AddJobImage(job.ID, stage, base64.StdEncoding.EncodeToString(data))
			if !ok {
				return utils.ErrRecordNotFound("job", job.ID)
			}
			c.success(cmd, "Attached image %s to job %s under %q", shortID(img.ID), shortID(job.ID), stage)
			return nil
		},
	}
	addCmd.Flags().StringVar(&stage, "stage", "", "workflow stage the photo belongs to (default: current status)")

	rmCmd := &cobra.Command{
		Use:     "rm <job-id> <image-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a photo from a job",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.app(cmd)
			if err != nil {
				return err
			}
			job, err := e.find(a.Store(), args[0])
			if err != nil {
				return err
			}
			imageID := args[1]
			for _, list := range job.Images {
				for _, img := range list {
					if strings.HasPrefix(img.ID, imageID) {
						imageID = img.ID
					}
				}
			}
			if !a.Store().RemoveJobImage(job.ID, imageID) {
				return utils.ErrRecordNotFound("image", args[1])
			}
			c.success(cmd, "Removed image %s from job %s", shortID(imageID), shortID(job.ID))
			return nil
		},
	}

	cmd.AddCommand(addCmd, rmCmd)
	return cmd
}
